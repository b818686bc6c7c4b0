// Package config loads the proxy configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreFile = "file"
	StoreEtcd = "etcd"
)

type Config struct {
	ListenAddr     string        `yaml:"listen_addr"`
	BrokerAddr     string        `yaml:"broker_addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// CallTimeout bounds a whole call to the broker, retries included. Zero disables it.
	CallTimeout    time.Duration `yaml:"call_timeout"`
	QueueCapacity  int           `yaml:"queue_capacity"`
	MaxFrameSize   uint32        `yaml:"max_frame_size"`
	TopicStore     string        `yaml:"topic_store"`
	TopicConfigDir string        `yaml:"topic_config_dir"`
	EtcdEndpoints  []string      `yaml:"etcd_endpoints"`
	RateLimit      RateLimit     `yaml:"rate_limit"`
	Retry          Retry         `yaml:"retry"`
	Probe          Probe         `yaml:"probe"`
	LogLevel       string        `yaml:"log_level"`
}

// RateLimit bounds requests sent to the broker. Zero RequestsPerSecond disables it.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Retry resends requests that never reached the broker.
type Retry struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
}

// Probe checks broker liveness. Zero Interval disables it.
type Probe struct {
	Interval time.Duration `yaml:"interval"`
	Code     uint8         `yaml:"code"`
}

func Default() *Config {
	return &Config{
		ListenAddr:     "0.0.0.0:8081",
		BrokerAddr:     "127.0.0.1:10911",
		RequestTimeout: 10 * time.Second,
		CallTimeout:    30 * time.Second,
		QueueCapacity:  1024,
		MaxFrameSize:   16 << 20,
		TopicStore:     StoreFile,
		TopicConfigDir: ".",
		EtcdEndpoints:  []string{"127.0.0.1:2379"},
		Retry:          Retry{MaxRetries: 2, BaseDelay: 100 * time.Millisecond},
		Probe:          Probe{Interval: 5 * time.Second},
		LogLevel:       "info",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validateAddr(c.ListenAddr, true); err != nil {
		return fmt.Errorf("config: listen_addr: %w", err)
	}
	if err := validateAddr(c.BrokerAddr, false); err != nil {
		return fmt.Errorf("config: broker_addr: %w", err)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("config: call_timeout must not be negative, got %s", c.CallTimeout)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("config: queue_capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.MaxFrameSize < 8 {
		return fmt.Errorf("config: max_frame_size too small: %d", c.MaxFrameSize)
	}
	switch c.TopicStore {
	case StoreFile:
		if c.TopicConfigDir == "" {
			return errors.New("config: topic_config_dir is required for the file store")
		}
	case StoreEtcd:
		if len(c.EtcdEndpoints) == 0 {
			return errors.New("config: etcd_endpoints is required for the etcd store")
		}
	default:
		return fmt.Errorf("config: unknown topic_store %q", c.TopicStore)
	}
	if c.RateLimit.RequestsPerSecond < 0 || (c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0) {
		return fmt.Errorf("config: rate_limit needs a positive burst, got %+v", c.RateLimit)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Probe.Interval < 0 {
		return fmt.Errorf("config: probe.interval must not be negative, got %s", c.Probe.Interval)
	}
	return nil
}

// validateAddr accepts host:port. An empty host is only allowed for listen addresses.
func validateAddr(addr string, listen bool) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "" && !listen {
		return fmt.Errorf("%q: missing host", addr)
	}
	if p, err := strconv.ParseUint(port, 10, 16); err != nil || p == 0 {
		return fmt.Errorf("%q: bad port", addr)
	}
	return nil
}
