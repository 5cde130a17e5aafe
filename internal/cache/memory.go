package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.Mutex
	entries map[Key]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory returns an empty cache whose entries live for ttl by default.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[Key]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(_ context.Context, keys ...Key) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	return nil
}
