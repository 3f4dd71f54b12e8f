// Package cache provides the byte-oriented cache used for scored mappings:
// an in-process go-cache tier, a redis tier, and a layered combination.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

// Observer receives hit/miss notifications per tier.
type Observer interface {
	CacheHit(tier string)
	CacheMiss(tier string)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)  {}
func (nopObserver) CacheMiss(string) {}

// Key joins parts with "|". Empty parts are kept so that
// ("a", "", "b") and ("a", "b", "") stay distinct.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}

// GetJSON reads key and decodes it into dest. A value that fails to decode
// is treated as a miss.
func GetJSON(ctx context.Context, c Cache, key string, dest interface{}) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func SetJSON(ctx context.Context, c Cache, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache value: %w", err)
	}
	return c.Set(ctx, key, raw, ttl)
}
