// Package cache is a small read-through cache owned by a store. Entries
// expire after a fixed TTL and are invalidated by the store on every write
// touching their key.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps string keys to values with an expiry. A zero or negative TTL
// disables caching: Set is a no-op and Get always misses.
//
// Read-through callers take Generation before loading a value and store it
// with SetIfFresh, so a load that raced with an Invalidate of the same key
// is dropped instead of cached.
type Cache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry[V]

	// gen counts invalidations; dropped records the gen at which each key
	// was last invalidated, clearedAt the gen of the last Clear.
	gen       uint64
	dropped   map[string]uint64
	clearedAt uint64

	hits, misses uint64
}

func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[V]),
		dropped: make(map[string]uint64),
	}
}

// WithClock replaces the time source. Tests only.
func (c *Cache[V]) WithClock(now func() time.Time) *Cache[V] {
	c.now = now
	return c
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		c.misses++
		if ok {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return e.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Generation returns a token for SetIfFresh. Take it before loading.
func (c *Cache[V]) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// SetIfFresh stores value unless key was invalidated or the cache cleared
// after generation since was taken. It reports whether the value was stored.
func (c *Cache[V]) SetIfFresh(key string, value V, since uint64) bool {
	if c.ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropped[key] > since || c.clearedAt > since {
		return false
	}
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	return true
}

// Invalidate drops keys. Dropping an absent key is fine.
func (c *Cache[V]) Invalidate(keys ...string) {
	if len(keys) == 0 {
		return
	}
	c.mu.Lock()
	c.gen++
	for _, k := range keys {
		delete(c.entries, k)
		c.dropped[k] = c.gen
	}
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.gen++
	c.clearedAt = c.gen
	c.entries = make(map[string]entry[V])
	c.dropped = make(map[string]uint64)
	c.mu.Unlock()
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the hit and miss counters.
func (c *Cache[V]) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
