package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process Cache used when no Redis server is configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory returns an empty MemoryCache.
func NewMemory() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = entry

	// Opportunistic sweep so expired summaries don't pile up.
	if len(c.entries)%64 == 0 {
		now := c.now()
		for k, e := range c.entries {
			if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	return nil
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) Close() error { return nil }
