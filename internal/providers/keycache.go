package providers

import (
	"context"
	"sync"
	"time"
)

// KeyCache holds a short-lived API key fetched from an external source
// (keychain, secrets manager). State lives in the struct, not package
// globals, so independent providers can hold independent keys.
type KeyCache struct {
	mu        sync.Mutex
	value     string
	fetchedAt time.Time
	ttl       time.Duration
	fetch     func(ctx context.Context) (string, error)
}

// NewKeyCache creates a cache around fetch. ttl <= 0 defaults to 5m.
func NewKeyCache(ttl time.Duration, fetch func(ctx context.Context) (string, error)) *KeyCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &KeyCache{ttl: ttl, fetch: fetch}
}

// Get returns the cached key, refreshing it after the TTL elapses. A
// failed refresh returns the stale key when one exists.
func (c *KeyCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value != "" && time.Since(c.fetchedAt) < c.ttl {
		return c.value, nil
	}

	key, err := c.fetch(ctx)
	if err != nil {
		if c.value != "" {
			return c.value, nil
		}
		return "", err
	}

	c.value = key
	c.fetchedAt = time.Now()
	return key, nil
}

// Invalidate clears the cached key, forcing the next Get to refetch.
func (c *KeyCache) Invalidate() {
	c.mu.Lock()
	c.value = ""
	c.mu.Unlock()
}
