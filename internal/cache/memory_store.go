package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps everything in process memory. Used by tests and by
// CACHE_BACKEND=memory for local development.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]json.RawMessage)}
}

func (m *MemoryStore) Get(_ context.Context, namespace, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[namespace][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append(json.RawMessage(nil), value...), nil
}

func (m *MemoryStore) Set(_ context.Context, namespace, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(namespace)[key] = encoded
	return nil
}

func (m *MemoryStore) Update(_ context.Context, namespace, key string, partial map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.bucket(namespace)
	merged, err := mergeFields(bucket[key], partial)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", namespace, key, err)
	}
	bucket[key] = merged
	return nil
}

func (m *MemoryStore) SetFieldOnce(_ context.Context, namespace, key, field string, value any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.bucket(namespace)
	exists, err := hasField(bucket[key], field)
	if err != nil || exists {
		return false, err
	}
	merged, err := mergeFields(bucket[key], map[string]any{field: value})
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", namespace, key, err)
	}
	bucket[key] = merged
	return true, nil
}

func (m *MemoryStore) GetAll(_ context.Context, namespace string) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(m.data[namespace]))
	for key, value := range m.data[namespace] {
		out[key] = append(json.RawMessage(nil), value...)
	}
	return out, nil
}

func (m *MemoryStore) Clear(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, namespace)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// bucket must be called with mu held for writing.
func (m *MemoryStore) bucket(namespace string) map[string]json.RawMessage {
	b, ok := m.data[namespace]
	if !ok {
		b = make(map[string]json.RawMessage)
		m.data[namespace] = b
	}
	return b
}
