package cache

import (
	"sync"
	"time"
)

// TTL is a small expiring memo cache. It backs the service-layer ledger
// snapshot so repeated read requests don't hit a remote backend on every
// call; writers invalidate explicitly, the TTL only bounds staleness from
// out-of-band edits (someone typing into the spreadsheet).
type TTL[T any] struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]item[T]
}

type item[T any] struct {
	data      T
	expiresAt time.Time
}

func NewTTL[T any](ttl time.Duration) *TTL[T] {
	return &TTL[T]{
		ttl:   ttl,
		items: make(map[string]item[T]),
	}
}

func (c *TTL[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	it, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if time.Now().After(it.expiresAt) {
		delete(c.items, key)
		return zero, false
	}
	return it.data, true
}

func (c *TTL[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item[T]{data: data, expiresAt: time.Now().Add(c.ttl)}
}

// Invalidate drops a key immediately, typically right after a write.
func (c *TTL[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *TTL[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
