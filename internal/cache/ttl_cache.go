package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/observer"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a concurrency-safe map whose entries expire after a fixed TTL.
// A zero or negative TTL disables caching: Get always misses and Set is a no-op.
type TTLCache[K comparable, V any] struct {
	name    string
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[K]entry[V]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewTTLCache creates a cache. name labels the lookup metrics.
func NewTTLCache[K comparable, V any](name string, ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		name:    name,
		ttl:     ttl,
		now:     utils.Now,
		entries: make(map[K]entry[V]),
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *TTLCache[K, V]) WithClock(now func() time.Time) *TTLCache[K, V] {
	c.now = now
	return c
}

// Get returns the cached value for key if present and not expired
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c.ttl <= 0 {
		c.record(false)
		return zero, false
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		if ok {
			c.mu.Lock()
			// Re-check under the write lock; a concurrent Set may have refreshed it.
			if cur, still := c.entries[key]; still && !c.now().Before(cur.expiresAt) {
				delete(c.entries, key)
			}
			c.mu.Unlock()
		}
		c.record(false)
		return zero, false
	}
	c.record(true)
	return e.value, true
}

// Set stores value under key
func (c *TTLCache[K, V]) Set(key K, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops key
func (c *TTLCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge removes every expired entry and returns how many were dropped
func (c *TTLCache[K, V]) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counts since creation
func (c *TTLCache[K, V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	rate := float64(0)
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{Hits: hits, Misses: misses, HitRate: rate}
}

func (c *TTLCache[K, V]) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	observer.IncCacheLookup(c.name, hit)
}

// Stats summarises cache effectiveness
type Stats struct {
	Hits    int64
	Misses  int64
	HitRate float64
}
