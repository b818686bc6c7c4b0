// Package topicconfig keeps the proxy's topic table: which topics exist and what
// kind of messages they carry.
//
// Two stores share one interface. Manager keeps the table in a JSON file next to
// a .bak copy of the previous version. EtcdStore keeps one key per topic under
// /grocketmq/topics/ so several proxies can share it.
package topicconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyTopicName   = errors.New("topicconfig: topic name is empty")
	ErrTopicNotFound    = errors.New("topicconfig: topic not found")
	ErrUnknownTopicType = errors.New("topicconfig: unknown topic type")
)

type TopicType uint8

const (
	Normal TopicType = iota
	Delay
	FIFO
	Transaction
)

var topicTypeNames = [...]string{"NORMAL", "DELAY", "FIFO", "TRANSACTION"}

func (t TopicType) String() string {
	if int(t) < len(topicTypeNames) {
		return topicTypeNames[t]
	}
	return fmt.Sprintf("TopicType(%d)", uint8(t))
}

// ParseTopicType accepts the upper-case names used in the JSON table.
func ParseTopicType(s string) (TopicType, error) {
	for i, name := range topicTypeNames {
		if name == s {
			return TopicType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTopicType, s)
}

func (t TopicType) MarshalJSON() ([]byte, error) {
	if int(t) >= len(topicTypeNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTopicType, uint8(t))
	}
	return json.Marshal(topicTypeNames[t])
}

func (t *TopicType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTopicType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type TopicConfig struct {
	Name      string    `json:"name"`
	TopicType TopicType `json:"topic_type"`
}

// Store is implemented by Manager and EtcdStore.
type Store interface {
	// Get returns ErrTopicNotFound for an unknown name.
	Get(ctx context.Context, name string) (TopicConfig, error)
	// Upsert rejects an empty name with ErrEmptyTopicName.
	Upsert(ctx context.Context, cfg TopicConfig) error
	// Delete is a no-op for an unknown name.
	Delete(ctx context.Context, name string) error
	// List returns every topic ordered by name.
	List(ctx context.Context) ([]TopicConfig, error)
	// Watch emits the full table each time it changes underneath the store,
	// until ctx is done.
	Watch(ctx context.Context) (<-chan []TopicConfig, error)
	Close() error
}
