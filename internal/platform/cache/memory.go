package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const TierMemory = "memory"

// MemoryCache is the in-process tier.
type MemoryCache struct {
	cache    *gocache.Cache
	observer Observer
}

func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		cache:    gocache.New(defaultTTL, cleanupInterval),
		observer: nopObserver{},
	}
}

// WithObserver reports hits and misses of this tier to o.
func (c *MemoryCache) WithObserver(o Observer) *MemoryCache {
	if o != nil {
		c.observer = o
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	if val, found := c.cache.Get(key); found {
		c.observer.CacheHit(TierMemory)
		return val.([]byte), true
	}
	c.observer.CacheMiss(TierMemory)
	return nil, false
}

// Set stores value. A zero ttl uses the cache default.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	c.cache.Set(key, value, ttl)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.cache.Delete(k)
	}
	return nil
}

func (c *MemoryCache) Clear(context.Context) error {
	c.cache.Flush()
	return nil
}

func (c *MemoryCache) Len() int {
	return c.cache.ItemCount()
}
