// Package cache is a Redis-backed read-through cache for read-mostly JSON
// payloads such as the pricing and projects catalogs.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the payload from the upstream store on cache miss.
type FetchFunc func(ctx context.Context) (any, error)

// Cache serves cached JSON payloads with a TTL, falling back to the supplied
// fetch function on miss. Concurrent misses for the same key collapse to a
// single upstream call; the coalescing group is per-instance, not package
// state, so it can be swapped in tests and its loss under restart only costs
// deduplication, never correctness.
type Cache struct {
	client *redis.Client
	prefix string
	group  singleflight.Group
}

// New builds a cache using the given Redis client and key prefix.
func New(client *redis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = "leadcapture:cache"
	}
	return &Cache{client: client, prefix: prefix}
}

// Get returns the cached payload for key when present and unexpired,
// otherwise invokes fetch exactly once, stores the marshaled result with the
// given TTL, and returns it. Fetch errors propagate and are never cached.
func (c *Cache) Get(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (json.RawMessage, error) {
	redisKey := c.prefix + ":" + key

	if cached, err := c.client.Get(ctx, redisKey).Bytes(); err == nil {
		return cached, nil
	} else if err != redis.Nil {
		// Redis being down degrades the cache to a pass-through.
		slog.Warn("cache read failed", "key", redisKey, "err", err)
	}

	payload, err, _ := c.group.Do(key, func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal cache value: %w", err)
		}
		if err := c.client.Set(ctx, redisKey, data, ttl).Err(); err != nil {
			slog.Warn("cache write failed", "key", redisKey, "err", err)
		}
		return json.RawMessage(data), nil
	})
	if err != nil {
		return nil, err
	}
	return payload.(json.RawMessage), nil
}

// Invalidate drops a cached entry so the next read refetches.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+":"+key).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("invalidate cache key %q: %w", key, err)
	}
	return nil
}
