package cache

import (
	"sync"
	"time"
)

const defaultTTL = 5 * time.Minute

// Config configures a TTL cache.
type Config struct {
	TTL   time.Duration
	Clock func() time.Time
}

// TTL is a read-through cache whose entries expire after a fixed duration and
// can be invalidated explicitly when the underlying entity changes.
type TTL[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	clock   func() time.Time
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New constructs a cache. A non-positive TTL falls back to five minutes.
func New[K comparable, V any](cfg Config) *TTL[K, V] {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TTL[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the cached value when present and not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	now := c.clock()
	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !now.Before(cached.expiresAt) {
		var zero V
		return zero, false
	}
	return cached.value, true
}

// Set stores a value for the configured TTL.
func (c *TTL[K, V]) Set(key K, value V) {
	expiresAt := c.clock().Add(c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: expiresAt}
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Errors are not cached.
func (c *TTL[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	value, err := load()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, value)
	return value, nil
}

// Invalidate drops a single key.
func (c *TTL[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every entry.
func (c *TTL[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// Len reports the number of stored entries, including expired ones not yet evicted.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
