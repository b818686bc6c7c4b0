package topicconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const fileName = "topic_config.json"

// Manager is the file-backed Store. Every change rewrites the whole table after
// copying the previous file to <file>.bak.
type Manager struct {
	mu         sync.RWMutex
	dir        string
	path       string
	backupPath string
	table      map[string]TopicConfig
	logger     *zap.Logger
}

var _ Store = (*Manager)(nil)

func NewManager(dir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := filepath.Join(dir, fileName)
	return &Manager{
		dir:        dir,
		path:       path,
		backupPath: path + ".bak",
		table:      make(map[string]TopicConfig),
		logger:     logger.With(zap.String("path", path)),
	}
}

// Path returns the table file.
func (m *Manager) Path() string {
	return m.path
}

// Load reads the table file, creating it with an empty table if it does not exist.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.read()
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(m.path, []byte("{}"), 0o644); err != nil {
			return fmt.Errorf("topicconfig: create %s: %w", m.path, err)
		}
		m.table = make(map[string]TopicConfig)
		return nil
	}
	if err != nil {
		return err
	}
	m.table = table
	return nil
}

func (m *Manager) read() (map[string]TopicConfig, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	table := make(map[string]TopicConfig)
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("topicconfig: parse %s: %w", m.path, err)
	}
	// a file holding "null" parses into a nil map
	if table == nil {
		table = make(map[string]TopicConfig)
	}
	return table, nil
}

func (m *Manager) Get(_ context.Context, name string) (TopicConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.table[name]
	if !ok {
		return TopicConfig{}, fmt.Errorf("%w: %s", ErrTopicNotFound, name)
	}
	return cfg, nil
}

func (m *Manager) Upsert(_ context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return ErrEmptyTopicName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.cloneTable()
	next[cfg.Name] = cfg
	if err := m.persist(next); err != nil {
		return err
	}
	m.table = next
	return nil
}

// Delete removes a topic and persists the table. Nothing is written when the topic is unknown.
func (m *Manager) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.table[name]; !ok {
		return nil
	}
	next := m.cloneTable()
	delete(next, name)
	if err := m.persist(next); err != nil {
		return err
	}
	m.table = next
	return nil
}

func (m *Manager) List(_ context.Context) ([]TopicConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(), nil
}

func (m *Manager) sorted() []TopicConfig {
	list := slices.Collect(maps.Values(m.table))
	slices.SortFunc(list, func(a, b TopicConfig) int { return strings.Compare(a.Name, b.Name) })
	return list
}

// cloneTable must be called with mu held.
func (m *Manager) cloneTable() map[string]TopicConfig {
	next := make(map[string]TopicConfig, len(m.table)+1)
	maps.Copy(next, m.table)
	return next
}

// persist writes table to disk. The in-memory table is swapped only after it succeeds.
// Must be called with mu held.
func (m *Manager) persist(table map[string]TopicConfig) error {
	if err := copyFile(m.path, m.backupPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("topicconfig: backup: %w", err)
	}
	data, err := json.Marshal(table)
	if err != nil {
		return err
	}

	// write then rename so a concurrent reader never sees half a table
	tmp, err := os.CreateTemp(m.dir, fileName+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), m.path)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// Watch reloads the table whenever the file is changed by someone else and emits
// the new table. A file that fails to parse is logged and the previous table kept.
func (m *Manager) Watch(ctx context.Context) (<-chan []TopicConfig, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// the directory, not the file: rename replaces the file's inode
	if err := watcher.Add(m.dir); err != nil {
		watcher.Close()
		return nil, err
	}

	ch := make(chan []TopicConfig, 1)
	go func() {
		defer close(ch)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != m.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				list, changed := m.reload()
				if !changed {
					continue
				}
				select {
				case ch <- list:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("topic config watch error", zap.Error(err))
			}
		}
	}()
	return ch, nil
}

// reload swaps in the table from disk and reports whether it differs from the one in memory.
func (m *Manager) reload() ([]TopicConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.read()
	if err != nil {
		m.logger.Warn("keeping previous topic table", zap.Error(err))
		return nil, false
	}
	if maps.Equal(table, m.table) {
		return nil, false
	}
	m.table = table
	m.logger.Info("topic table reloaded", zap.Int("topics", len(table)))
	return m.sorted(), true
}

func (m *Manager) Close() error {
	return nil
}
