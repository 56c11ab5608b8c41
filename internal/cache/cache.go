// Package cache provides a bounded in-memory cache for decrypted blob
// payloads. Entries expire after a fixed TTL and the oldest insertion is
// evicted when the entry limit is exceeded.
//
// Plaintext lives in process memory for the lifetime of an entry. That is a
// deliberate tradeoff inherited from the service contract, not a
// recommendation; keep the TTL and size bounds tight.
package cache

import (
	"sync"
	"time"
)

const (
	DefaultMaxEntries  = 100
	DefaultMaxItemSize = 1 << 20 // 1MiB
	DefaultTTL         = 5 * time.Minute
)

type entry struct {
	data       []byte
	insertedAt time.Time
}

// Cache is a mutex-guarded map with per-entry TTL and oldest-insertion
// eviction. All operations are atomic under one lock; no lock is held
// across any caller-supplied code.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]entry
	maxEntries  int
	maxItemSize int
	ttl         time.Duration
	now         func() time.Time
}

// New creates a cache. Non-positive limits fall back to the defaults.
func New(maxEntries, maxItemSize int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxItemSize <= 0 {
		maxItemSize = DefaultMaxItemSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries:     make(map[string]entry),
		maxEntries:  maxEntries,
		maxItemSize: maxItemSize,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Get returns the cached payload for key, or false if absent.
// An expired entry is removed and reported as absent.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.data, true
}

// Put stores a copy of data under key. Payloads over the per-item limit are
// silently skipped. When the entry limit is reached the oldest insertion is
// evicted first.
func (c *Cache) Put(key string, data []byte) {
	if len(data) > c.maxItemSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	c.entries[key] = entry{data: buf, insertedAt: c.now()}
}

// Evict removes key from the cache if present.
func (c *Cache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// EvictExpired removes all entries older than the TTL and returns the
// number removed.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.insertedAt) > c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the current entry count, including not-yet-swept expired entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.insertedAt.Before(oldest) {
			oldestKey, oldest = k, e.insertedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
