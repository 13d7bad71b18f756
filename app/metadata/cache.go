package metadata

import (
	"sync"
	"time"
)

// responseCache holds successful remote response bodies in memory for a TTL.
// Failures are never stored; the cache is process-local and lost on restart.
type responseCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry

	now func() time.Time
}

type cacheEntry struct {
	body     []byte
	storedAt time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *responseCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.body, true
}

func (c *responseCache) Set(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistic sweep keeps the map from accumulating expired pages
	// across long daemon runs
	if len(c.entries) > 0 && len(c.entries)%512 == 0 {
		now := c.now()
		for k, e := range c.entries {
			if now.Sub(e.storedAt) > c.ttl {
				delete(c.entries, k)
			}
		}
	}

	c.entries[key] = cacheEntry{body: body, storedAt: c.now()}
}

func (c *responseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
