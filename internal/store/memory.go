package store

import (
	"context"
	"sync"
)

// Memory is an in-process KV and Images implementation, used by tests and
// by commands that run without a data directory.
type Memory struct {
	mu     sync.Mutex
	kv     map[string]string
	images map[string][]byte
	writes int
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		kv:     make(map[string]string),
		images: make(map[string][]byte),
	}
}

func (m *Memory) Load(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Save(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	m.writes++
	return nil
}

func (m *Memory) GetImage(_ context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.images[url]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) PutImage(_ context.Context, url string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[url] = append([]byte(nil), data...)
	return nil
}

// Writes returns how many times Save has been called.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
