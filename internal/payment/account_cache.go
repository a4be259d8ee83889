package payment

import (
	"context"
	"sync"
	"time"
)

// AccountLookup resolves the platform's processor account id.
type AccountLookup func(ctx context.Context) (string, error)

// AccountCache caches the platform account id process-wide. The value
// changes essentially never, so call sites read the cache instead of
// hitting the processor; a TTL bounds staleness and a fallback covers
// lookup failure at startup.
type AccountCache struct {
	mu        sync.Mutex
	lookup    AccountLookup
	fallback  string
	ttl       time.Duration
	value     string
	fetchedAt time.Time
}

func NewAccountCache(lookup AccountLookup, fallback string, ttl time.Duration) *AccountCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AccountCache{lookup: lookup, fallback: fallback, ttl: ttl}
}

// Get returns the cached account id, refreshing after the TTL. On
// lookup failure the previous value (or the fallback) is returned.
func (c *AccountCache) Get(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value != "" && time.Since(c.fetchedAt) < c.ttl {
		return c.value
	}
	if c.lookup != nil {
		if v, err := c.lookup(ctx); err == nil && v != "" {
			c.value = v
			c.fetchedAt = time.Now()
			return c.value
		}
	}
	if c.value != "" {
		return c.value
	}
	return c.fallback
}

// Invalidate drops the cached value; the next Get re-fetches.
func (c *AccountCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = ""
	c.fetchedAt = time.Time{}
}
