package kvstore

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store, used in tests and for ephemeral runs.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]string
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data:    make(map[string]string),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	if at, ok := m.expires[key]; ok && !m.now().Before(at) {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	delete(m.expires, key)
	return nil
}

func (m *Memory) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return m.Set(ctx, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune()
	m.data[key] = value
	m.expires[key] = m.now().Add(ttl)
	return nil
}

// prune drops expired keys; callers hold the write lock.
func (m *Memory) prune() {
	now := m.now()
	for k, at := range m.expires {
		if !now.Before(at) {
			delete(m.data, k)
			delete(m.expires, k)
		}
	}
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.expires, key)
	return nil
}

func (m *Memory) Close() error {
	return nil
}

var _ Store = (*Memory)(nil)
