package directory

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores the value, timestamp and list element for a cached key.
type cacheEntry struct {
	value     any
	timestamp time.Time
	element   *list.Element
}

// cache is a thread-safe, TTL-based, size-limited cache for resolved lookups.
// A doubly-linked list maintains insertion order for O(1) eviction. Entries
// expire lazily on read; failures are evicted explicitly via Invalidate so a
// broken endpoint is re-resolved on the next request.
type cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   *list.List // keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
}

// newCache creates a cache with the specified TTL and maximum size.
// A non-positive TTL disables caching entirely.
func newCache(ttl time.Duration, maxSize int) *cache {
	return &cache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get returns the cached value for key if present and fresh.
func (c *cache) Get(key string) (any, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(entry.timestamp) >= c.ttl {
		c.Invalidate(key)
		return nil, false
	}
	return entry.value, true
}

// Put stores a value for key. If the cache is at capacity, the oldest entry
// is evicted to make room.
func (c *cache) Put(key string, value any) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	// If key already exists, update in place and move to back
	if entry, exists := c.entries[key]; exists {
		entry.value = value
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &cacheEntry{
		value:     value,
		timestamp: now,
		element:   elem,
	}
}

// Invalidate removes a key so the next lookup resolves fresh.
func (c *cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.order.Remove(entry.element)
		delete(c.entries, key)
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// Len reports the number of live entries, expired or not.
func (c *cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
