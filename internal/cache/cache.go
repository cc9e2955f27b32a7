// Package cache provides the cache-aside layer sitting in front of the SQL
// and vector stores: a Redis-backed implementation for production, and an
// in-memory fallback for tests and the "none configured" deployment mode.
// GetOrLoad collapses concurrent misses for the same key via singleflight so
// a cache stampede on a popular query only triggers one backend lookup.
package cache

import (
	"context"
	"time"
)

// Cache is the minimum surface the search engine, the normalization
// pipeline, and the combined-embedding generator require from a cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePattern removes every key matching a glob pattern (e.g.
	// "search:*" to invalidate all cached query results after ingestion).
	DeletePattern(ctx context.Context, pattern string) error
	// Incr increments a sliding-window counter keyed by name, returning the
	// new count, and refreshes the key's TTL to window on every call so the
	// counter resets only after window has passed with no further calls.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}
