// Package ratelimit enforces the per-client, per-endpoint-class request
// budgets from the request envelope using a Redis sorted-set
// sliding window: each request's timestamp is scored into a ZSET keyed by
// (client_id, endpoint_class), stale entries older than the window are
// trimmed atomically, and the remaining cardinality is compared against the
// class's configured limit.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"materialscat/internal/config"
)

// Decision is the outcome of a Check call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	RetryAfter time.Duration
}

// Limiter enforces sliding-window limits per (clientID, class).
type Limiter interface {
	// Check records one request for clientID under class and reports
	// whether it falls within the class's per-minute and per-hour budgets.
	Check(ctx context.Context, clientID, class string) (Decision, error)
}

type window struct {
	size  time.Duration
	limit int
}

type redisLimiter struct {
	client  *redis.Client
	classes map[string][]window
	bursts  map[string]int
}

// New builds a Limiter from the configured rate-limit classes, keyed by
// class name (search/materials/ingestion/prices/
// health each carry independent rpm/rph budgets). A class's Burst value
// is stored but not enforced.
func New(client *redis.Client, classes []config.RateLimitClass) Limiter {
	byClass := make(map[string][]window, len(classes))
	bursts := make(map[string]int, len(classes))
	for _, c := range classes {
		ws := make([]window, 0, 2)
		if c.RPM > 0 {
			ws = append(ws, window{size: time.Minute, limit: c.RPM})
		}
		if c.RPH > 0 {
			ws = append(ws, window{size: time.Hour, limit: c.RPH})
		}
		byClass[c.Name] = ws
		bursts[c.Name] = c.Burst
	}
	return &redisLimiter{client: client, classes: byClass, bursts: bursts}
}

func (l *redisLimiter) Check(ctx context.Context, clientID, class string) (Decision, error) {
	windows, ok := l.classes[class]
	if !ok || len(windows) == 0 {
		return Decision{Allowed: true}, nil
	}

	tightest := Decision{Allowed: true}
	for _, w := range windows {
		d, err := l.checkWindow(ctx, clientID, class, w)
		if err != nil {
			return Decision{}, err
		}
		if !d.Allowed {
			return d, nil
		}
		if tightest.Allowed && (tightest.Limit == 0 || d.Remaining < tightest.Remaining) {
			tightest = d
		}
	}
	return tightest, nil
}

// checkWindow trims entries older than w.size and appends the current
// request's timestamp in one pipeline, so the trim-count-append sequence is
// atomic with respect to other requests racing the same key.
func (l *redisLimiter) checkWindow(ctx context.Context, clientID, class string, w window) (Decision, error) {
	key := fmt.Sprintf("ratelimit:%s:%s:%s", class, clientID, w.size)
	now := time.Now()
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uniqueSuffix())

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", now.Add(-w.size).UnixNano()))
	card := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, key, w.size)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	count := int(card.Val()) + 1 // +1 for the request just added
	if count > w.limit {
		// Undo the speculative add: this request is rejected, so it must
		// not count against the window for the next check.
		l.client.ZRem(ctx, key, member)
		return Decision{Allowed: false, Limit: w.limit, Remaining: 0, RetryAfter: w.size}, nil
	}
	return Decision{Allowed: true, Limit: w.limit, Remaining: w.limit - count}, nil
}

var uniqueCounter uint64

// uniqueSuffix disambiguates two requests landing in the same nanosecond,
// which ZADD would otherwise collapse into a single sorted-set member.
func uniqueSuffix() string {
	return fmt.Sprintf("%d", atomic.AddUint64(&uniqueCounter, 1))
}

// memoryLimiter is a mutex-protected sliding window for tests and the "none
// configured" deployment mode.
type memoryLimiter struct {
	mu      sync.Mutex
	classes map[string][]window
	hits    map[string][]time.Time
}

// NewMemory builds a Limiter that keeps its sliding windows in-process,
// equivalent to redisLimiter but without cross-replica coordination.
func NewMemory(classes []config.RateLimitClass) Limiter {
	byClass := make(map[string][]window, len(classes))
	for _, c := range classes {
		ws := make([]window, 0, 2)
		if c.RPM > 0 {
			ws = append(ws, window{size: time.Minute, limit: c.RPM})
		}
		if c.RPH > 0 {
			ws = append(ws, window{size: time.Hour, limit: c.RPH})
		}
		byClass[c.Name] = ws
	}
	return &memoryLimiter{classes: byClass, hits: make(map[string][]time.Time)}
}

func (l *memoryLimiter) Check(_ context.Context, clientID, class string) (Decision, error) {
	windows, ok := l.classes[class]
	if !ok || len(windows) == 0 {
		return Decision{Allowed: true}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	base := clientID + ":" + class
	now := time.Now()

	tightest := Decision{Allowed: true}
	for _, w := range windows {
		key := base + ":" + w.size.String()
		cutoff := now.Add(-w.size)
		kept := l.hits[key][:0]
		for _, t := range l.hits[key] {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		if len(kept) >= w.limit {
			l.hits[key] = kept
			return Decision{Allowed: false, Limit: w.limit, Remaining: 0, RetryAfter: w.size}, nil
		}
		l.hits[key] = kept
		remaining := w.limit - len(kept) - 1
		if tightest.Limit == 0 || remaining < tightest.Remaining {
			tightest = Decision{Allowed: true, Limit: w.limit, Remaining: remaining}
		}
	}
	for _, w := range windows {
		key := base + ":" + w.size.String()
		l.hits[key] = append(l.hits[key], now)
	}
	return tightest, nil
}
