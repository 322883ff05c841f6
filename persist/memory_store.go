package persist

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps values in process memory. It backs tests and the
// embedded service when no durable store is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]Value
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]Value)}
}

func (m *MemoryStore) Open(ctx context.Context, key string, mode Mode) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	current, exists := m.values[key]
	m.mu.RUnlock()

	if !exists && mode&ModeWrite == 0 {
		return nil, ErrNotFound
	}

	snapshot := Value{Type: current.Type, Data: bytes.Clone(current.Data)}
	return newEntry(key, mode, snapshot,
		func(v Value) error {
			m.mu.Lock()
			m.values[key] = Value{Type: v.Type, Data: bytes.Clone(v.Data)}
			m.mu.Unlock()
			return nil
		},
		func() error {
			return m.Delete(context.Background(), key)
		},
	), nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, value Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if value.Type == TypeEmpty {
		value.Type = TypeString
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = Value{Type: value.Type, Data: bytes.Clone(value.Data)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.values[key]; ok {
		clear(v.Data)
		delete(m.values, key)
	}
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Ping() error {
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range m.values {
		clear(v.Data)
		delete(m.values, k)
	}
	return nil
}

func (m *MemoryStore) GetType() string {
	return string(StoreTypeMemory)
}
