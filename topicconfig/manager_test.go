package topicconfig

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newLoadedManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(t.TempDir(), nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func TestLoadExistingTable(t *testing.T) {
	dir := t.TempDir()
	data := `{"test1":{"name":"test1","topic_type":"NORMAL"},"orders":{"name":"orders","topic_type":"FIFO"}}`
	if err := os.WriteFile(filepath.Join(dir, "topic_config.json"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(dir, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := m.Get(context.Background(), "test1")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "test1" || cfg.TopicType != Normal {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg, _ := m.Get(context.Background(), "orders"); cfg.TopicType != FIFO {
		t.Fatalf("expect FIFO, got %v", cfg.TopicType)
	}
}

func TestLoadCreatesEmptyTable(t *testing.T) {
	m := newLoadedManager(t)

	data, err := os.ReadFile(m.Path())
	if err != nil {
		t.Fatalf("table file not created: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("expect {}, got %q", data)
	}
	if list, _ := m.List(context.Background()); len(list) != 0 {
		t.Fatalf("expect empty table, got %v", list)
	}
}

func TestLoadRejectsUnknownType(t *testing.T) {
	dir := t.TempDir()
	data := `{"t":{"name":"t","topic_type":"PRIORITY"}}`
	if err := os.WriteFile(filepath.Join(dir, "topic_config.json"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewManager(dir, nil).Load(); !errors.Is(err, ErrUnknownTopicType) {
		t.Fatalf("expect ErrUnknownTopicType, got %v", err)
	}
}

func TestLoadNullTable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "topic_config.json"), []byte("null"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(dir, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if list, _ := m.List(context.Background()); len(list) != 0 {
		t.Fatalf("expect empty table, got %v", list)
	}
	if err := m.Upsert(context.Background(), TopicConfig{Name: "a", TopicType: Normal}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := m.Get(context.Background(), "a"); err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestUpsertWritesTableAndBackup(t *testing.T) {
	m := newLoadedManager(t)
	ctx := context.Background()

	if err := m.Upsert(ctx, TopicConfig{Name: "test1", TopicType: Normal}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := m.Upsert(ctx, TopicConfig{Name: "test1", TopicType: Delay}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var onDisk map[string]TopicConfig
	data, err := os.ReadFile(m.Path())
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk["test1"].TopicType != Delay {
		t.Fatalf("expect DELAY on disk, got %s", data)
	}

	// the backup holds the table as it was before the last write
	backup, err := os.ReadFile(m.Path() + ".bak")
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	var previous map[string]TopicConfig
	if err := json.Unmarshal(backup, &previous); err != nil {
		t.Fatal(err)
	}
	if previous["test1"].TopicType != Normal {
		t.Fatalf("expect NORMAL in backup, got %s", backup)
	}
}

func TestUpsertEmptyName(t *testing.T) {
	m := newLoadedManager(t)

	if err := m.Upsert(context.Background(), TopicConfig{TopicType: Normal}); !errors.Is(err, ErrEmptyTopicName) {
		t.Fatalf("expect ErrEmptyTopicName, got %v", err)
	}
	if _, err := os.Stat(m.Path() + ".bak"); !os.IsNotExist(err) {
		t.Fatalf("a rejected upsert must not write, stat .bak: %v", err)
	}
}

func TestDeleteTopic(t *testing.T) {
	m := newLoadedManager(t)
	ctx := context.Background()

	if err := m.Upsert(ctx, TopicConfig{Name: "test1", TopicType: Normal}); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "test1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, "test1"); !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("expect ErrTopicNotFound, got %v", err)
	}
	data, _ := os.ReadFile(m.Path())
	if string(data) != "{}" {
		t.Fatalf("expect empty table on disk, got %q", data)
	}
}

func TestDeleteUnknownDoesNotWrite(t *testing.T) {
	m := newLoadedManager(t)

	if err := m.Delete(context.Background(), "missing"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(m.Path() + ".bak"); !os.IsNotExist(err) {
		t.Fatalf("deleting an unknown topic must not write, stat .bak: %v", err)
	}
}

func TestFailedWriteKeepsTable(t *testing.T) {
	m := newLoadedManager(t)
	ctx := context.Background()

	if err := m.Upsert(ctx, TopicConfig{Name: "test1", TopicType: Normal}); err != nil {
		t.Fatal(err)
	}
	// a directory in place of the backup makes every later write fail
	if err := os.Remove(m.Path() + ".bak"); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(m.Path()+".bak", 0o755); err != nil {
		t.Fatal(err)
	}

	if err := m.Upsert(ctx, TopicConfig{Name: "test1", TopicType: Delay}); err == nil {
		t.Fatal("expect Upsert to fail")
	}
	if err := m.Upsert(ctx, TopicConfig{Name: "test2", TopicType: FIFO}); err == nil {
		t.Fatal("expect Upsert to fail")
	}
	if err := m.Delete(ctx, "test1"); err == nil {
		t.Fatal("expect Delete to fail")
	}

	cfg, err := m.Get(ctx, "test1")
	if err != nil {
		t.Fatalf("Get after failed writes: %v", err)
	}
	if cfg.TopicType != Normal {
		t.Fatalf("memory ran ahead of disk: %+v", cfg)
	}
	if _, err := m.Get(ctx, "test2"); !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("expect ErrTopicNotFound, got %v", err)
	}
}

func TestListSorted(t *testing.T) {
	m := newLoadedManager(t)
	ctx := context.Background()
	for _, name := range []string{"c", "a", "b"} {
		if err := m.Upsert(ctx, TopicConfig{Name: name, TopicType: Transaction}); err != nil {
			t.Fatal(err)
		}
	}

	list, err := m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Name != "a" || list[1].Name != "b" || list[2].Name != "c" {
		t.Fatalf("expect a, b, c, got %v", list)
	}
}

func TestWatchReloadsExternalEdit(t *testing.T) {
	m := newLoadedManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := m.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	data := `{"edited":{"name":"edited","topic_type":"TRANSACTION"}}`
	if err := os.WriteFile(m.Path(), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case list := <-changes:
		if len(list) != 1 || list[0].Name != "edited" || list[0].TopicType != Transaction {
			t.Fatalf("unexpected reload %v", list)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("external edit never reloaded")
	}
	if _, err := m.Get(ctx, "edited"); err != nil {
		t.Fatalf("Get after reload: %v", err)
	}

	cancel()
	for range changes {
	}
}

func TestTopicTypeJSON(t *testing.T) {
	for _, tt := range []TopicType{Normal, Delay, FIFO, Transaction} {
		data, err := json.Marshal(tt)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != `"`+tt.String()+`"` {
			t.Fatalf("expect %q, got %s", tt.String(), data)
		}
		var back TopicType
		if err := json.Unmarshal(data, &back); err != nil || back != tt {
			t.Fatalf("round trip of %s gave %v (%v)", tt, back, err)
		}
	}
	if _, err := json.Marshal(TopicType(9)); err == nil {
		t.Fatal("expect error for unknown topic type")
	}
}
