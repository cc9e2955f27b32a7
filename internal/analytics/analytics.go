// Package analytics records per-query usage metrics into an append-only
// daily bucket, used to drive the popular-queries source of suggestions and
// basic usage reporting. Recording is fire-and-forget: Record enqueues onto
// a bounded channel and returns immediately, so a slow or unavailable
// storage backend never adds latency to the search request it is
// instrumenting; when the channel is full the event is dropped and a
// counter is bumped instead of blocking the caller.
package analytics

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TTL is how long a daily bucket is retained once written.
const TTL = 30 * 24 * time.Hour

// Record is one search invocation's usage metrics.
type Record struct {
	Day         string `json:"day"` // YYYY-MM-DD
	QueryHash   string `json:"query_hash"`
	Mode        string `json:"mode"`
	NormalizedText string `json:"normalized_text,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	ResultCount int    `json:"result_count"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// QueryHash derives a stable query fingerprint: the first 16 hex
// characters of SHA1(mode || normalized_text || filters), where filters is
// the filter map serialized as sorted key=value pairs so the hash is stable
// regardless of map iteration order.
func QueryHash(mode, normalizedText string, filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sortStrings(keys)
	var b strings.Builder
	b.WriteString(mode)
	b.WriteString(normalizedText)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(filters[k])
		b.WriteByte(';')
	}
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Store persists a day's records. Implementations are append-only: Append
// adds records without reading or rewriting what is already stored.
type Store interface {
	Append(ctx context.Context, day string, rec Record) error
	// Day returns every record appended for day, most-recent last.
	Day(ctx context.Context, day string) ([]Record, error)
}

// Recorder is the fire-and-forget front the search engine calls into.
type Recorder struct {
	store   Store
	log     zerolog.Logger
	events  chan Record
	dropped atomic.Int64
	done    chan struct{}
}

// New starts a Recorder with a bounded backlog of queueSize events; Close
// drains and stops the background writer.
func New(store Store, queueSize int, log zerolog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	r := &Recorder{
		store:  store,
		log:    log.With().Str("component", "analytics.Recorder").Logger(),
		events: make(chan Record, queueSize),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record enqueues a usage event without blocking the caller. now is passed
// in explicitly so callers (and tests) control the clock.
func (r *Recorder) Record(mode, normalizedText string, filters map[string]string, duration time.Duration, resultCount int, now time.Time) {
	rec := Record{
		Day:            now.UTC().Format("2006-01-02"),
		QueryHash:      QueryHash(mode, normalizedText, filters),
		Mode:           mode,
		NormalizedText: normalizedText,
		DurationMS:     duration.Milliseconds(),
		ResultCount:    resultCount,
		RecordedAt:     now,
	}
	select {
	case r.events <- rec:
	default:
		r.dropped.Add(1)
		r.log.Warn().Int64("dropped_total", r.dropped.Load()).Msg("analytics queue full, dropping event")
	}
}

// Dropped reports the cumulative number of events dropped due to
// backpressure since startup.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

func (r *Recorder) loop() {
	defer close(r.done)
	for rec := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.Append(ctx, rec.Day, rec); err != nil {
			r.log.Warn().Err(err).Msg("failed to persist analytics record")
		}
		cancel()
	}
}

// Close stops accepting new events and waits for the backlog to drain.
func (r *Recorder) Close() {
	close(r.events)
	<-r.done
}

// redisStore persists daily buckets as a Redis list, one JSON-encoded
// Record per entry, with the bucket's TTL refreshed on every append so a
// day's data disappears 30 days after its last write.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore builds a Store backed by Redis lists.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func bucketKey(day string) string { return "analytics:bucket:" + day }

func (s *redisStore) Append(ctx context.Context, day string, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, bucketKey(day), b)
	pipe.Expire(ctx, bucketKey(day), TTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) Day(ctx context.Context, day string) ([]Record, error) {
	raw, err := s.client.LRange(ctx, bucketKey(day), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(raw))
	for _, r := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// memoryStore is an in-process Store for tests and the "none configured"
// deployment mode.
type memoryStore struct {
	mu      sync.Mutex
	buckets map[string][]Record
}

// NewMemoryStore returns an in-memory Store. It does not enforce TTL
// eviction proactively; callers that need bounded memory in a long-running
// process without Redis should prefer NewRedisStore.
func NewMemoryStore() Store {
	return &memoryStore{buckets: make(map[string][]Record)}
}

func (s *memoryStore) Append(_ context.Context, day string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[day] = append(s.buckets[day], rec)
	return nil
}

func (s *memoryStore) Day(_ context.Context, day string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.buckets[day]))
	copy(out, s.buckets[day])
	return out, nil
}
