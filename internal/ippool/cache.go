package ippool

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cache is the bounded per-host:port slot cache (spec.md §4.1
// "max_cache_entries", an LRU eviction policy over the least-recently-used
// host:port keys — entries themselves still expire on their own TTL).
type cache struct {
	mu    sync.Mutex
	inner *lru.Cache[CacheKey, CacheSlot]
}

func newCache(maxEntries int) *cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	inner, _ := lru.New[CacheKey, CacheSlot](maxEntries)
	return &cache{inner: inner}
}

// get returns the cached slot for key if present and its Best entry is not
// expired.
func (c *cache) get(key CacheKey, now time.Time) (CacheSlot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.inner.Get(key)
	if !ok {
		return CacheSlot{}, false
	}
	if slot.Best.Expired(now) {
		c.inner.Remove(key)
		return CacheSlot{}, false
	}
	return slot, true
}

func (c *cache) put(key CacheKey, slot CacheSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, slot)
}

func (c *cache) remove(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(key)
}

func (c *cache) resize(maxEntries int) {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Resize(maxEntries)
}

// keys returns every cached key, used by maintenance_tick to sweep expired
// and tripped entries.
func (c *cache) keys() []CacheKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Keys()
}
