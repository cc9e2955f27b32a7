package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Aside wraps a Cache with a singleflight group so concurrent misses for the
// same key collapse into a single call to load, instead of every waiting
// request hammering the SQL/vector backends at once.
type Aside struct {
	cache Cache
	group singleflight.Group
}

// NewAside constructs a cache-aside helper over an existing Cache.
func NewAside(c Cache) *Aside {
	return &Aside{cache: c}
}

// GetOrLoad returns the cached value for key if present; otherwise it calls
// load exactly once per concurrent burst of misses, caches the result for
// ttl, and fans the value out to every waiter.
func (a *Aside) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok, err := a.cache.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return v, nil
	}

	v, err, _ := a.group.Do(key, func() (any, error) {
		// Re-check under the singleflight key: another goroutine may have
		// populated the cache between our Get above and acquiring the flight.
		if v, ok, err := a.cache.Get(ctx, key); err == nil && ok {
			return v, nil
		}
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := a.cache.Set(ctx, key, loaded, ttl); err != nil {
			return loaded, err
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// RawGet reads key directly from the underlying cache without triggering a
// load on miss.
func (a *Aside) RawGet(ctx context.Context, key string) ([]byte, bool, error) {
	return a.cache.Get(ctx, key)
}

// Invalidate removes key from the cache.
func (a *Aside) Invalidate(ctx context.Context, key string) error {
	return a.cache.Delete(ctx, key)
}

// Set writes value directly into the underlying cache, bypassing
// GetOrLoad's singleflight. Callers use this after a write-path mutation to
// populate the cache with the value they just persisted, instead of
// forcing the next reader to pay for a reload.
func (a *Aside) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return a.cache.Set(ctx, key, value, ttl)
}

// InvalidatePattern removes every key matching a glob pattern, used after
// ingestion to drop stale cached search results.
func (a *Aside) InvalidatePattern(ctx context.Context, pattern string) error {
	return a.cache.DeletePattern(ctx, pattern)
}
