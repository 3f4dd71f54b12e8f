package cache

import (
	"context"
	"errors"
	"time"
)

// LayeredCache reads memory first, then the shared tier, promoting shared
// hits into memory.
type LayeredCache struct {
	memory    Cache
	shared    Cache
	memoryTTL time.Duration
}

func NewLayeredCache(memory, shared Cache) *LayeredCache {
	return &LayeredCache{memory: memory, shared: shared}
}

// WithMemoryTTL caps how long an entry stays in the memory tier. Deletes
// only reach the memory tier of the instance that issued them, so the cap
// bounds how stale other instances can be.
func (c *LayeredCache) WithMemoryTTL(ttl time.Duration) *LayeredCache {
	c.memoryTTL = ttl
	return c
}

func (c *LayeredCache) localTTL(ttl time.Duration) time.Duration {
	if c.memoryTTL <= 0 {
		return ttl
	}
	if ttl <= 0 || ttl > c.memoryTTL {
		return c.memoryTTL
	}
	return ttl
}

func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if val, found := c.memory.Get(ctx, key); found {
		return val, true
	}
	if val, found := c.shared.Get(ctx, key); found {
		c.memory.Set(ctx, key, val, c.localTTL(0))
		return val, true
	}
	return nil, false
}

// Set writes both tiers. A shared-tier failure is returned but the memory
// tier is still populated.
func (c *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(ctx, key, value, c.localTTL(ttl)); err != nil {
		return err
	}
	return c.shared.Set(ctx, key, value, ttl)
}

func (c *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	return errors.Join(c.memory.Delete(ctx, keys...), c.shared.Delete(ctx, keys...))
}

func (c *LayeredCache) Clear(ctx context.Context) error {
	return errors.Join(c.memory.Clear(ctx), c.shared.Clear(ctx))
}
