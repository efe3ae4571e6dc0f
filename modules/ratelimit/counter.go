package ratelimit

import (
	"context"
	"sync"
	"time"

	"aboba/modules/clock"
)

// CounterStore is the storage abstraction ratelimit uses.
type CounterStore interface {
	// Incr increments a counter at key and returns the new value.
	// TTL tells the store how long to keep the key alive (at least).
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the current value of a counter, or 0 if missing.
	Get(ctx context.Context, key string) (int64, error)
}

var _ CounterStore = (*MemoryCounter)(nil)

// MemoryCounter is a process-local CounterStore for single instance setups and tests.
type MemoryCounter struct {
	mu    sync.Mutex
	clock clock.Clock
	items map[string]memoryCount
}

type memoryCount struct {
	n         int64
	expiresAt time.Time
}

func NewMemoryCounter(c clock.Clock) *MemoryCounter {
	if c == nil {
		c = clock.RealClockProvider()
	}
	return &MemoryCounter{clock: c, items: make(map[string]memoryCount)}
}

func (m *MemoryCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	item, ok := m.items[key]
	if !ok || !now.Before(item.expiresAt) {
		// TTL is only set when the key is created, like the Redis script
		item = memoryCount{expiresAt: now.Add(ttl)}
	}
	item.n++
	m.items[key] = item
	return item.n, nil
}

func (m *MemoryCounter) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok || !m.clock.Now().Before(item.expiresAt) {
		return 0, nil
	}
	return item.n, nil
}
