package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Area used by tests. The error fields, when set,
// make the corresponding operation fail, which is how storage-failure
// handling is exercised without a broken backend.
type Memory struct {
	mu    sync.Mutex
	items map[string][]byte

	GetErr    error
	SetErr    error
	RemoveErr error
}

// NewMemory returns an empty in-memory area.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}

	items := make(map[string][]byte)
	if len(keys) == 0 {
		for k, v := range m.items {
			items[k] = append([]byte(nil), v...)
		}
		return items, nil
	}
	for _, k := range keys {
		if v, ok := m.items[k]; ok {
			items[k] = append([]byte(nil), v...)
		}
	}
	return items, nil
}

func (m *Memory) Set(ctx context.Context, items map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetErr != nil {
		return m.SetErr
	}
	for k, v := range items {
		m.items[k] = append([]byte(nil), v...)
	}
	return nil
}

func (m *Memory) Remove(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
