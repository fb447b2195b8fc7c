package cache

import (
	"context"
	"sync"
)

type memoryBackend[V any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[V]
}

func NewMemoryBackend[V any]() Backend[V] {
	return &memoryBackend[V]{
		entries: make(map[string]Entry[V]),
	}
}

func (m *memoryBackend[V]) Get(_ context.Context, key string) (*Entry[V], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *memoryBackend[V]) Set(_ context.Context, entry Entry[V]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entry.Key] = entry
	return nil
}

func (m *memoryBackend[V]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *memoryBackend[V]) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]Entry[V])
	return nil
}
