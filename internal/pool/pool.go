// Package pool manages the capacity of the connection pools behind the
// vector, SQL, and cache adapters. Each adapter exposes its pool through a
// small Adjustable interface; the Manager samples utilization on an
// interval and grows or shrinks capacity in 20% steps between configured
// bounds. Resizes are applied serially per pool from the sampling loop, so
// an adapter never sees two concurrent capacity changes.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Stats is one pool's live snapshot.
type Stats struct {
	Size    int32
	InUse   int32
	WaitP95 time.Duration
}

// Adjustable is the capability an adapter's pool exposes to the Manager.
// Resize carries the new desired capacity; adapters that cannot resize a
// live pool record the target and apply it to connections they open next.
type Adjustable interface {
	Name() string
	Stats() Stats
	Resize(capacity int32)
}

// Config bounds one pool's capacity and the watermarks that trigger a step.
type Config struct {
	Min            int32
	Max            int32
	HighWatermark  float64
	LowWatermark   float64
	SampleInterval time.Duration
}

// DefaultConfig mirrors the defaults used for a single-tenant deployment.
func DefaultConfig() Config {
	return Config{
		Min:            2,
		Max:            32,
		HighWatermark:  0.8,
		LowWatermark:   0.4,
		SampleInterval: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Min <= 0 {
		c.Min = d.Min
	}
	if c.Max < c.Min {
		c.Max = d.Max
	}
	if c.HighWatermark <= 0 || c.HighWatermark > 1 {
		c.HighWatermark = d.HighWatermark
	}
	if c.LowWatermark <= 0 || c.LowWatermark >= c.HighWatermark {
		c.LowWatermark = d.LowWatermark
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = d.SampleInterval
	}
	return c
}

type supervised struct {
	pool   Adjustable
	cfg    Config
	target int32
}

// Manager samples every registered pool on its interval and steps capacity
// by 20% when utilization crosses a watermark.
type Manager struct {
	log zerolog.Logger

	mu    sync.Mutex
	pools []*supervised

	sizeGauge  metric.Int64Gauge
	inUseGauge metric.Int64Gauge

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewManager constructs an empty Manager. Register pools, then call Start.
func NewManager(log zerolog.Logger) *Manager {
	meter := otel.Meter("materialscat/pool")
	sizeGauge, _ := meter.Int64Gauge("pool.size")
	inUseGauge, _ := meter.Int64Gauge("pool.in_use")
	return &Manager{
		log:        log.With().Str("component", "pool.Manager").Logger(),
		sizeGauge:  sizeGauge,
		inUseGauge: inUseGauge,
		done:       make(chan struct{}),
	}
}

// Register adds a pool under the Manager's supervision. Initial target is
// the pool's current size clamped into [cfg.Min, cfg.Max].
func (m *Manager) Register(p Adjustable, cfg Config) {
	cfg = cfg.withDefaults()
	target := clamp(p.Stats().Size, cfg.Min, cfg.Max)
	m.mu.Lock()
	m.pools = append(m.pools, &supervised{pool: p, cfg: cfg, target: target})
	m.mu.Unlock()
}

// Start launches the sampling loop. The loop ticks at the smallest
// registered SampleInterval, never longer than 30s, and samples every pool
// on each tick; a pool with a longer SampleInterval is not tracked
// separately.
func (m *Manager) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.loop(ctx)
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.tickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleAll(ctx)
		}
	}
}

func (m *Manager) tickInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	min := 30 * time.Second
	for _, s := range m.pools {
		if s.cfg.SampleInterval < min {
			min = s.cfg.SampleInterval
		}
	}
	return min
}

func (m *Manager) sampleAll(ctx context.Context) {
	m.mu.Lock()
	pools := make([]*supervised, len(m.pools))
	copy(pools, m.pools)
	m.mu.Unlock()

	for _, s := range pools {
		m.sample(ctx, s)
	}
}

func (m *Manager) sample(ctx context.Context, s *supervised) {
	stats := s.pool.Stats()
	attrs := metric.WithAttributes(attribute.String("pool", s.pool.Name()))
	m.sizeGauge.Record(ctx, int64(stats.Size), attrs)
	m.inUseGauge.Record(ctx, int64(stats.InUse), attrs)

	if stats.Size == 0 {
		return
	}
	utilization := float64(stats.InUse) / float64(stats.Size)

	prev := s.target
	switch {
	case utilization > s.cfg.HighWatermark:
		s.target = clamp(grow(s.target), s.cfg.Min, s.cfg.Max)
	case utilization < s.cfg.LowWatermark:
		s.target = clamp(shrink(s.target), s.cfg.Min, s.cfg.Max)
	}
	if s.target != prev {
		s.pool.Resize(s.target)
		m.log.Debug().
			Str("pool", s.pool.Name()).
			Float64("utilization", utilization).
			Int32("prev_target", prev).
			Int32("new_target", s.target).
			Msg("pool resized")
	}
}

// grow and shrink step capacity by 20%, always moving at least one
// connection so small pools do not get stuck.
func grow(n int32) int32 {
	step := n / 5
	if step == 0 {
		step = 1
	}
	return n + step
}

func shrink(n int32) int32 {
	step := n / 5
	if step == 0 {
		step = 1
	}
	return n - step
}

func clamp(n, lo, hi int32) int32 {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// Targets returns the current per-pool recommended capacity, keyed by pool
// name, for the detailed health endpoint.
func (m *Manager) Targets() map[string]int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int32, len(m.pools))
	for _, s := range m.pools {
		out[s.pool.Name()] = s.target
	}
	return out
}

// Close stops the sampling loop. It does not close the underlying pools.
func (m *Manager) Close() {
	m.once.Do(func() {
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
	})
}

// PgxPool adapts a pgxpool.Pool. pgxpool has no live resize, so Resize
// records the target for callers that recreate pools on demand.
type PgxPool struct {
	pool *pgxpool.Pool

	mu     sync.RWMutex
	target int32
}

// NewPgxPool wraps an existing Postgres pool.
func NewPgxPool(p *pgxpool.Pool) *PgxPool {
	return &PgxPool{pool: p, target: p.Config().MaxConns}
}

func (p *PgxPool) Name() string { return "sql" }

func (p *PgxPool) Stats() Stats {
	st := p.pool.Stat()
	return Stats{
		Size:    st.TotalConns(),
		InUse:   st.AcquiredConns(),
		WaitP95: st.AcquireDuration(),
	}
}

func (p *PgxPool) Resize(capacity int32) {
	p.mu.Lock()
	p.target = capacity
	p.mu.Unlock()
}

// Target returns the capacity a recreated pool should use as MaxConns.
func (p *PgxPool) Target() int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.target
}

// SemaphorePool is a resizable concurrency limiter for adapters without a
// native pool (the vector client's in-flight request budget). Acquire
// blocks while all slots are taken or until ctx is cancelled.
type SemaphorePool struct {
	name string

	mu    sync.Mutex
	size  int32
	inUse int32
	wait  chan struct{}
}

// NewSemaphorePool creates a limiter with the given initial capacity.
func NewSemaphorePool(name string, capacity int32) *SemaphorePool {
	if capacity <= 0 {
		capacity = 1
	}
	return &SemaphorePool{name: name, size: capacity, wait: make(chan struct{})}
}

func (s *SemaphorePool) Name() string { return s.name }

func (s *SemaphorePool) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Size: s.size, InUse: s.inUse}
}

// Resize changes capacity. Shrinking below the number of slots in use does
// not interrupt holders; the pool simply admits no one until enough slots
// are returned.
func (s *SemaphorePool) Resize(capacity int32) {
	if capacity <= 0 {
		capacity = 1
	}
	s.mu.Lock()
	s.size = capacity
	s.notifyLocked()
	s.mu.Unlock()
}

// Acquire takes one slot, blocking until one frees up or ctx is done.
func (s *SemaphorePool) Acquire(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.inUse < s.size {
			s.inUse++
			s.mu.Unlock()
			return nil
		}
		ch := s.wait
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Release returns one slot.
func (s *SemaphorePool) Release() {
	s.mu.Lock()
	if s.inUse > 0 {
		s.inUse--
	}
	s.notifyLocked()
	s.mu.Unlock()
}

// notifyLocked wakes every waiter; they re-check capacity and re-park if
// still full.
func (s *SemaphorePool) notifyLocked() {
	close(s.wait)
	s.wait = make(chan struct{})
}
