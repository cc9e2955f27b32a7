package ingestion

import (
	"context"
	"sync"
	"time"
)

// Store persists ProcessingJob/JobItem rows. Implementations
// live either in the SQL store (when enabled) or, as a fallback, in the
// cache with a 24h TTL and Ephemeral()==true surfaced in response metadata
// so callers never mistake the cache fallback for durable storage.
type Store interface {
	// CreateJob persists one pending JobItem per item under requestID.
	CreateJob(ctx context.Context, requestID string, items []Item) error
	// UpdateItem applies a single item's state transition. For the cache
	// fallback this is a load/modify/store of the job document serialized
	// by an in-process mutex per request_id; there is no cross-process
	// compare-and-set. For the SQL store it is a row-level transaction.
	UpdateItem(ctx context.Context, requestID, materialID string, update func(*JobItem)) error
	// Job returns the aggregate view of a request's progress.
	Job(ctx context.Context, requestID string) (Job, bool, error)
	// Items returns every tracked item for a request.
	Items(ctx context.Context, requestID string) ([]JobItem, bool, error)
	// Ephemeral reports whether rows created by this Store are ephemeral,
	// i.e. age out with no durable backing (false for SQL, true for the
	// cache fallback).
	Ephemeral() bool
}

// Throughput tracks a moving average of completed items/second to estimate
// a new request's completion time from an exponential moving average of
// recent throughput.
type Throughput struct {
	mu    sync.Mutex
	alpha float64
	ema   float64 // items/sec
	last  time.Time
}

// NewThroughput builds a Throughput tracker with the given EMA smoothing
// factor (0 < alpha <= 1; higher weighs recent samples more heavily).
func NewThroughput(alpha float64) *Throughput {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	return &Throughput{alpha: alpha}
}

// Observe records that n items completed since the last observation.
func (t *Throughput) Observe(n int, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last.IsZero() {
		t.last = at
		return
	}
	elapsed := at.Sub(t.last).Seconds()
	if elapsed <= 0 {
		return
	}
	sample := float64(n) / elapsed
	if t.ema == 0 {
		t.ema = sample
	} else {
		t.ema = t.alpha*sample + (1-t.alpha)*t.ema
	}
	t.last = at
}

// Estimate returns the expected completion time for a job with remaining
// items outstanding, starting from now. A zero/negative rate falls back to
// a conservative 1 item/sec so a cold-start estimate is never in the past.
func (t *Throughput) Estimate(now time.Time, remaining int) time.Time {
	t.mu.Lock()
	rate := t.ema
	t.mu.Unlock()
	if rate <= 0 {
		rate = 1
	}
	return now.Add(time.Duration(float64(remaining)/rate) * time.Second)
}
