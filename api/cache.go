package api

import (
	"sync"
	"time"
)

// cacheEntry is a cached GET response.
type cacheEntry struct {
	body      any
	expiresAt time.Time
}

// responseCache keeps GET responses for the lifetime of one CLI
// invocation so bulk subcommands don't refetch the same listings.
type responseCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	maxSize int
}

func newResponseCache(ttl time.Duration, maxSize int) *responseCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &responseCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// get returns a deep copy of the cached body. Callers mutate responses
// in place (sorting, annotating), which must not bleed into later hits.
func (c *responseCache) get(key string) (any, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return deepCopy(entry.body), true
}

// deepCopy clones a decoded JSON value. Scalars are immutable and
// returned as-is.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return val
	}
}

func (c *responseCache) set(key string, body any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		// Drop expired entries first; if still full, start over.
		now := time.Now()
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.maxSize {
			c.entries = make(map[string]cacheEntry)
		}
	}

	// Stored by copy for the same reason get copies: the caller holds
	// a reference to body and may mutate it.
	c.entries[key] = cacheEntry{body: deepCopy(body), expiresAt: time.Now().Add(c.ttl)}
}

func (c *responseCache) invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
