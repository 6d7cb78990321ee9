package directory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCachePutGet(t *testing.T) {
	c := newCache(time.Minute, 16)

	c.Put("k", "v")

	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestCacheMiss(t *testing.T) {
	c := newCache(time.Minute, 16)

	_, ok := c.Get("absent")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := newCache(10*time.Millisecond, 16)

	c.Put("k", "v")

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok, "entry should expire after TTL")
	assert.Equal(t, 0, c.Len(), "expired entry should be dropped on read")
}

func TestCacheInvalidate(t *testing.T) {
	c := newCache(time.Minute, 16)

	c.Put("k", "v")
	c.Invalidate("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	c := newCache(time.Minute, 2)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")

	_, ok = c.Get("b")
	assert.True(t, ok)

	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCacheUpdateMovesToBack(t *testing.T) {
	c := newCache(time.Minute, 2)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("a", 10) // refresh "a" so "b" is now oldest
	c.Put("c", 3)

	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 10, got)

	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCacheDisabled(t *testing.T) {
	c := newCache(0, 16)

	c.Put("k", "v")

	_, ok := c.Get("k")
	assert.False(t, ok, "zero TTL disables caching")
}
