package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != "0.0.0.0:8081" || cfg.BrokerAddr != "127.0.0.1:10911" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.RequestTimeout != 10*time.Second || cfg.CallTimeout != 30*time.Second || cfg.QueueCapacity != 1024 || cfg.MaxFrameSize != 16<<20 {
		t.Fatalf("unexpected transport defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.yaml")
	data := `
broker_addr: 10.0.0.5:10911
request_timeout: 3s
call_timeout: 0s
topic_store: etcd
etcd_endpoints: [10.0.0.7:2379, 10.0.0.8:2379]
rate_limit:
  requests_per_second: 500
  burst: 50
retry:
  max_retries: 4
  base_delay: 20ms
probe:
  interval: 1s
  code: 34
log_level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BrokerAddr != "10.0.0.5:10911" || cfg.RequestTimeout != 3*time.Second || cfg.CallTimeout != 0 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.TopicStore != StoreEtcd || len(cfg.EtcdEndpoints) != 2 {
		t.Fatalf("store settings not applied: %+v", cfg)
	}
	if cfg.RateLimit.RequestsPerSecond != 500 || cfg.RateLimit.Burst != 50 {
		t.Fatalf("rate limit not applied: %+v", cfg.RateLimit)
	}
	if cfg.Retry.MaxRetries != 4 || cfg.Retry.BaseDelay != 20*time.Millisecond {
		t.Fatalf("retry not applied: %+v", cfg.Retry)
	}
	if cfg.Probe.Interval != time.Second || cfg.Probe.Code != 34 {
		t.Fatalf("probe not applied: %+v", cfg.Probe)
	}
	// untouched keys keep their defaults
	if cfg.ListenAddr != "0.0.0.0:8081" || cfg.QueueCapacity != 1024 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.yaml")
	if err := os.WriteFile(path, []byte("broker_addr: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expect parse error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"broker without host", func(c *Config) { c.BrokerAddr = ":10911" }, "broker_addr"},
		{"broker without port", func(c *Config) { c.BrokerAddr = "localhost" }, "broker_addr"},
		{"listen bad port", func(c *Config) { c.ListenAddr = ":0" }, "listen_addr"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "request_timeout"},
		{"negative call timeout", func(c *Config) { c.CallTimeout = -time.Second }, "call_timeout"},
		{"zero queue", func(c *Config) { c.QueueCapacity = 0 }, "queue_capacity"},
		{"tiny frame", func(c *Config) { c.MaxFrameSize = 4 }, "max_frame_size"},
		{"unknown store", func(c *Config) { c.TopicStore = "redis" }, "topic_store"},
		{"etcd without endpoints", func(c *Config) { c.TopicStore = StoreEtcd; c.EtcdEndpoints = nil }, "etcd_endpoints"},
		{"rate without burst", func(c *Config) { c.RateLimit.RequestsPerSecond = 10 }, "rate_limit"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "max_retries"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Default()
			c.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), c.errSub) {
				t.Fatalf("expect error mentioning %q, got %v", c.errSub, err)
			}
		})
	}

	cfg := Default()
	cfg.ListenAddr = ":8081"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("listen address without host is fine: %v", err)
	}
}
