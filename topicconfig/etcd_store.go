package topicconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// KeyPrefix is where EtcdStore keeps topics:
//
//	Key:   /grocketmq/topics/{TopicName}
//	Value: JSON-encoded TopicConfig
const KeyPrefix = "/grocketmq/topics/"

// EtcdStore is the Store shared by several proxies through etcd.
type EtcdStore struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
	logger *zap.Logger
}

var _ Store = (*EtcdStore)(nil)

// NewEtcdStore creates a store connected to the given etcd endpoints. The client
// connects lazily, so an unreachable cluster surfaces on the first call.
func NewEtcdStore(endpoints []string, logger *zap.Logger) (*EtcdStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}
	return &EtcdStore{client: c, logger: logger}, nil
}

func (s *EtcdStore) Get(ctx context.Context, name string) (TopicConfig, error) {
	resp, err := s.client.Get(ctx, KeyPrefix+name)
	if err != nil {
		return TopicConfig{}, err
	}
	if len(resp.Kvs) == 0 {
		return TopicConfig{}, fmt.Errorf("%w: %s", ErrTopicNotFound, name)
	}
	var cfg TopicConfig
	if err := json.Unmarshal(resp.Kvs[0].Value, &cfg); err != nil {
		return TopicConfig{}, fmt.Errorf("topicconfig: parse %s: %w", name, err)
	}
	return cfg, nil
}

func (s *EtcdStore) Upsert(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return ErrEmptyTopicName
	}
	val, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.client.Put(ctx, KeyPrefix+cfg.Name, string(val))
	return err
}

func (s *EtcdStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.Delete(ctx, KeyPrefix+name)
	return err
}

// List queries every key under KeyPrefix. Malformed entries are skipped.
func (s *EtcdStore) List(ctx context.Context) ([]TopicConfig, error) {
	resp, err := s.client.Get(ctx, KeyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	list := make([]TopicConfig, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var cfg TopicConfig
		if err := json.Unmarshal(kv.Value, &cfg); err != nil {
			s.logger.Warn("skipping malformed topic", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		list = append(list, cfg)
	}
	slices.SortFunc(list, func(a, b TopicConfig) int { return strings.Compare(a.Name, b.Name) })
	return list, nil
}

// Watch emits the full topic list whenever anything under KeyPrefix changes.
// On each event the list is fetched again rather than applying the event itself.
func (s *EtcdStore) Watch(ctx context.Context) (<-chan []TopicConfig, error) {
	ch := make(chan []TopicConfig, 1)
	watchChan := s.client.Watch(ctx, KeyPrefix, clientv3.WithPrefix())

	go func() {
		defer close(ch)
		for resp := range watchChan {
			if err := resp.Err(); err != nil {
				s.logger.Warn("topic watch error", zap.Error(err))
				continue
			}
			list, err := s.List(ctx)
			if err != nil {
				s.logger.Warn("topic list after watch event failed", zap.Error(err))
				continue
			}
			select {
			case ch <- list:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}
