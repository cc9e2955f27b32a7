// Package repository is the single read/write path for Material: a
// cache-aside layer in front of the vector store (authoritative) and an
// optional SQL store (best-effort, eventually consistent), with reconciler
// events covering the gap between the two.
package repository

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"materialscat/internal/apierrors"
	"materialscat/internal/cache"
	"materialscat/internal/materials"
	"materialscat/internal/vectorstore"
)

// Embedder is the capability needed to compute a Material's embedding when
// the caller did not supply one.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ReconcileEvent is the durable record emitted when the SQL side of a write
// ultimately fails after retries, for an
// out-of-band reconciler to replay against the SQL store later.
type ReconcileEvent struct {
	Op      string // "upsert" | "delete"
	ID      string
	Payload []byte
	At      time.Time
}

// ReconcileSink durably records ReconcileEvents. It must not block the
// write path for long: the repository calls it only after the SQL retry
// budget is already exhausted.
type ReconcileSink interface {
	Emit(ctx context.Context, ev ReconcileEvent) error
}

// logReconcileSink records reconciliation events to the structured log.
// Reads never depend on it, and the write path has already succeeded
// against the vector store by the time it fires, so a logging-only sink is
// an acceptable default; a production deployment would point this at a
// durable queue instead.
type logReconcileSink struct{ log zerolog.Logger }

// NewLogReconcileSink returns a ReconcileSink that records events via the
// given logger.
func NewLogReconcileSink(log zerolog.Logger) ReconcileSink {
	return &logReconcileSink{log: log}
}

func (s *logReconcileSink) Emit(_ context.Context, ev ReconcileEvent) error {
	s.log.Warn().Str("op", ev.Op).Str("material_id", ev.ID).Time("at", ev.At).
		Msg("sql write exhausted retries, recorded reconciliation event")
	return nil
}

// TTL bundles the cache lifetimes the repository needs.
type TTL struct {
	Material time.Duration
	Search   time.Duration
}

// Repository is the materials read/write path.
type Repository struct {
	vector     vectorstore.Store
	sql        sqlStore
	aside      *cache.Aside
	embed      Embedder
	reconcile  ReconcileSink
	log        zerolog.Logger
	ttl        TTL
	batchChunk int
	batchConc  int
}

// sqlStore is the slice of sqlstore.Store the repository needs; declared
// locally so the repository package does not force every caller to import
// sqlstore just to pass nil.
type sqlStore interface {
	Index(ctx context.Context, id string, text string, metadata map[string]string) error
	Remove(ctx context.Context, id string) error
}

// New constructs a Repository. sql may be nil (SQL disabled per config).
func New(vector vectorstore.Store, sql sqlStore, aside *cache.Aside, embed Embedder, reconcile ReconcileSink, log zerolog.Logger, ttl TTL) *Repository {
	return &Repository{
		vector: vector, sql: sql, aside: aside, embed: embed,
		reconcile: reconcile, log: log, ttl: ttl,
		batchChunk: 50, batchConc: 5,
	}
}

func materialKey(id string) string { return "mat:" + id }

func batchKey(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	sum := sha1.Sum([]byte(strings.Join(sorted, ",")))
	return "mat:batch:" + hex.EncodeToString(sum[:])
}

// Get is a cache-aside read with TTL; the vector store is the
// authoritative source on a miss.
func (r *Repository) Get(ctx context.Context, id string) (materials.Material, error) {
	raw, err := r.aside.GetOrLoad(ctx, materialKey(id), r.ttl.Material, func(ctx context.Context) ([]byte, error) {
		res, ok, err := r.vector.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apierrors.NotFound("material", id)
		}
		m := materialFromResult(id, res)
		return json.Marshal(m)
	})
	if err != nil {
		return materials.Material{}, err
	}
	var m materials.Material
	if err := json.Unmarshal(raw, &m); err != nil {
		return materials.Material{}, fmt.Errorf("repository: decode cached material %s: %w", id, err)
	}
	return m, nil
}

// GetBatch partitions ids into cache hits and misses, fetches every miss
// in one vector batch-get, populates the per-id cache, and preserves the
// caller's input order in the result. Unknown ids keep a zero-value
// Material at their position.
func (r *Repository) GetBatch(ctx context.Context, ids []string) ([]materials.Material, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	bk := batchKey(ids)
	if raw, ok, err := r.aside.RawGet(ctx, bk); err == nil && ok {
		var cached []materials.Material
		if err := json.Unmarshal(raw, &cached); err == nil && len(cached) == len(ids) {
			return cached, nil
		}
	}

	out := make([]materials.Material, len(ids))
	missPos := make(map[string][]int) // id -> positions awaiting a backend read
	misses := make([]string, 0, len(ids))
	for i, id := range ids {
		if raw, ok, err := r.aside.RawGet(ctx, materialKey(id)); err == nil && ok {
			var m materials.Material
			if err := json.Unmarshal(raw, &m); err == nil {
				out[i] = m
				continue
			}
		}
		if len(missPos[id]) == 0 {
			misses = append(misses, id)
		}
		missPos[id] = append(missPos[id], i)
	}

	if len(misses) > 0 {
		found, err := r.vector.BatchGet(ctx, misses)
		if err != nil {
			return nil, fmt.Errorf("repository: vector batch get: %w", err)
		}
		for id, res := range found {
			m := materialFromResult(id, res)
			for _, i := range missPos[id] {
				out[i] = m
			}
			if err := r.setCached(ctx, m); err != nil {
				r.log.Warn().Err(err).Str("material_id", id).Msg("populate cache after batch get failed")
			}
		}
	}

	if raw, err := json.Marshal(out); err == nil {
		if err := r.aside.Set(ctx, bk, raw, r.ttl.Material); err != nil {
			r.log.Warn().Err(err).Msg("populate batch cache failed")
		}
	}
	return out, nil
}

// Create computes an embedding if one is
// absent, writes the vector store, best-effort writes SQL, and invalidates
// cached search results.
func (r *Repository) Create(ctx context.Context, m materials.Material) (materials.Material, error) {
	if err := m.Validate(); err != nil {
		return materials.Material{}, apierrors.Wrap(apierrors.CodeValidation, err.Error(), err)
	}
	// Without an embedder the material is stored embedding-less and is
	// reachable only through the sql/fuzzy modes.
	if len(m.Embedding) == 0 && r.embed != nil {
		vecs, err := r.embed.Embed(ctx, []string{m.Name})
		if err != nil {
			return materials.Material{}, err
		}
		m.Embedding = vecs[0]
	}
	now := m.CreatedAt
	if now.IsZero() {
		m.CreatedAt = timeNow()
	}
	m.UpdatedAt = timeNow()

	if err := r.vector.Upsert(ctx, m.ID, m.Embedding, metadataOf(m)); err != nil {
		return materials.Material{}, fmt.Errorf("repository: vector upsert: %w", err)
	}
	r.writeSQLBestEffort(ctx, "upsert", m)

	if err := r.invalidateSearch(ctx); err != nil {
		r.log.Warn().Err(err).Msg("search cache invalidation failed after create")
	}
	if err := r.setCached(ctx, m); err != nil {
		r.log.Warn().Err(err).Str("material_id", m.ID).Msg("populate cache after create failed")
	}
	return m, nil
}

// ItemOutcome is one CreateBatch result.
type ItemOutcome struct {
	Material materials.Material
	Err      error
}

// CreateBatch chunks the input by the configured batch size and writes
// each chunk through one vector batch-upsert, processing chunks with
// bounded parallelism; one item's failure never blocks the rest of the
// batch. The search cache is invalidated once, after every chunk settles.
func (r *Repository) CreateBatch(ctx context.Context, items []materials.Material) []ItemOutcome {
	out := make([]ItemOutcome, len(items))
	sem := make(chan struct{}, r.batchConc)
	var wg sync.WaitGroup
	for start := 0; start < len(items); start += r.batchChunk {
		end := start + r.batchChunk
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]
		outcomes := out[start:end]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r.createChunk(ctx, chunk, outcomes)
		}()
	}
	wg.Wait()
	if err := r.invalidateSearch(ctx); err != nil {
		r.log.Warn().Err(err).Msg("search cache invalidation failed after batch create")
	}
	return out
}

// createChunk validates a chunk, computes missing embeddings in one call,
// writes the survivors in one vector batch-upsert, then finishes each item
// with the best-effort SQL write and its cache entry. outcomes is the
// caller's result window for this chunk.
func (r *Repository) createChunk(ctx context.Context, chunk []materials.Material, outcomes []ItemOutcome) {
	prepared := make([]materials.Material, len(chunk))
	valid := make([]int, 0, len(chunk))
	for i, m := range chunk {
		if err := m.Validate(); err != nil {
			outcomes[i] = ItemOutcome{Material: m, Err: apierrors.Wrap(apierrors.CodeValidation, err.Error(), err)}
			continue
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = timeNow()
		}
		m.UpdatedAt = timeNow()
		prepared[i] = m
		valid = append(valid, i)
	}

	if r.embed != nil {
		var texts []string
		var needs []int
		for _, i := range valid {
			if len(prepared[i].Embedding) == 0 {
				texts = append(texts, prepared[i].Name)
				needs = append(needs, i)
			}
		}
		if len(texts) > 0 {
			vecs, err := r.embed.Embed(ctx, texts)
			if err != nil {
				kept := valid[:0]
				for _, i := range valid {
					if len(prepared[i].Embedding) == 0 {
						outcomes[i] = ItemOutcome{Material: prepared[i], Err: err}
						continue
					}
					kept = append(kept, i)
				}
				valid = kept
			} else {
				for n, i := range needs {
					prepared[i].Embedding = vecs[n]
				}
			}
		}
	}
	if len(valid) == 0 {
		return
	}

	points := make([]vectorstore.Point, len(valid))
	for n, i := range valid {
		points[n] = vectorstore.Point{ID: prepared[i].ID, Vector: prepared[i].Embedding, Metadata: metadataOf(prepared[i])}
	}
	if err := r.vector.BatchUpsert(ctx, points); err != nil {
		werr := fmt.Errorf("repository: vector batch upsert: %w", err)
		for _, i := range valid {
			outcomes[i] = ItemOutcome{Material: prepared[i], Err: werr}
		}
		return
	}

	for _, i := range valid {
		m := prepared[i]
		r.writeSQLBestEffort(ctx, "upsert", m)
		if err := r.setCached(ctx, m); err != nil {
			r.log.Warn().Err(err).Str("material_id", m.ID).Msg("populate cache after batch create failed")
		}
		outcomes[i] = ItemOutcome{Material: m}
	}
}

// Update is a read-modify-write, regenerating
// the embedding only when a field that feeds it changed.
func (r *Repository) Update(ctx context.Context, id string, patch func(*materials.Material)) (materials.Material, error) {
	m, err := r.Get(ctx, id)
	if err != nil {
		return materials.Material{}, err
	}
	before := m
	patch(&m)
	if err := m.Validate(); err != nil {
		return materials.Material{}, apierrors.Wrap(apierrors.CodeValidation, err.Error(), err)
	}
	if embeddingInputsChanged(before, m) {
		if r.embed != nil {
			vecs, err := r.embed.Embed(ctx, []string{m.Name})
			if err != nil {
				return materials.Material{}, err
			}
			m.Embedding = vecs[0]
		} else {
			// A stale vector would no longer be derived from the record's
			// fields; dropping it demotes the material to sql/fuzzy reach.
			m.Embedding = nil
		}
	}
	m.UpdatedAt = timeNow()

	if err := r.vector.Upsert(ctx, m.ID, m.Embedding, metadataOf(m)); err != nil {
		return materials.Material{}, fmt.Errorf("repository: vector upsert: %w", err)
	}
	r.writeSQLBestEffort(ctx, "upsert", m)

	if err := r.aside.Invalidate(ctx, materialKey(id)); err != nil {
		r.log.Warn().Err(err).Msg("invalidate material cache after update failed")
	}
	if err := r.invalidateSearch(ctx); err != nil {
		r.log.Warn().Err(err).Msg("search cache invalidation failed after update")
	}
	if err := r.setCached(ctx, m); err != nil {
		r.log.Warn().Err(err).Str("material_id", m.ID).Msg("populate cache after update failed")
	}
	return m, nil
}

func embeddingInputsChanged(before, after materials.Material) bool {
	return before.Name != after.Name ||
		before.Description != after.Description ||
		before.UseCategory != after.UseCategory ||
		before.Unit != after.Unit
}

// Delete removes the material from both stores and
// invalidates the id and search caches.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.vector.Delete(ctx, id); err != nil {
		return fmt.Errorf("repository: vector delete: %w", err)
	}
	if r.sql != nil {
		if err := r.sql.Remove(ctx, id); err != nil {
			r.log.Warn().Err(err).Str("material_id", id).Msg("sql delete failed, emitting reconciliation event")
			r.emitReconcile(ctx, "delete", id, nil)
		}
	}
	if err := r.aside.Invalidate(ctx, materialKey(id)); err != nil {
		r.log.Warn().Err(err).Msg("invalidate material cache after delete failed")
	}
	return r.invalidateSearch(ctx)
}

func (r *Repository) setCached(ctx context.Context, m materials.Material) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.aside.Set(ctx, materialKey(m.ID), raw, r.ttl.Material)
}

func (r *Repository) invalidateSearch(ctx context.Context) error {
	if err := r.aside.InvalidatePattern(ctx, "search:*"); err != nil {
		return err
	}
	return r.aside.InvalidatePattern(ctx, "suggest:*")
}

// writeSQLBestEffort implements the SQL leg of the dual-store write
// protocol: up to 3 retries, exponential backoff 100/400/1600ms with ±20%
// jitter, then a reconciliation event on final failure. It never returns an
// error to the caller — the vector write has already succeeded and reads
// never block on SQL.
func (r *Repository) writeSQLBestEffort(ctx context.Context, op string, m materials.Material) {
	if r.sql == nil {
		return
	}
	backoffs := []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond}
	var lastErr error
retry:
	for attempt := 0; attempt < len(backoffs)+1; attempt++ {
		if attempt > 0 {
			wait := jitter(backoffs[attempt-1], 0.2)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retry
			}
		}
		err := r.sql.Index(ctx, m.ID, m.Name, metadataOf(m))
		if err == nil {
			return
		}
		lastErr = err
	}
	r.log.Warn().Err(lastErr).Str("material_id", m.ID).Msg("sql write exhausted retries, emitting reconciliation event")
	payload, _ := json.Marshal(m)
	r.emitReconcile(ctx, op, m.ID, payload)
}

func (r *Repository) emitReconcile(ctx context.Context, op, id string, payload []byte) {
	if r.reconcile == nil {
		return
	}
	if err := r.reconcile.Emit(ctx, ReconcileEvent{Op: op, ID: id, Payload: payload, At: timeNow()}); err != nil {
		r.log.Error().Err(err).Str("material_id", id).Msg("failed to emit reconciliation event")
	}
}

// jitter scales d by a uniformly random factor in [1-frac, 1+frac].
func jitter(d time.Duration, frac float64) time.Duration {
	delta := (rand.Float64()*2 - 1) * frac
	return time.Duration(float64(d) * (1 + delta))
}

func metadataOf(m materials.Material) map[string]string {
	md := map[string]string{
		"name": m.Name,
		"unit": m.Unit,
	}
	if m.Description != "" {
		md["description"] = m.Description
	}
	if m.UseCategory != "" {
		md["use_category"] = m.UseCategory
	}
	if m.SKU != "" {
		md["sku"] = m.SKU
	}
	if !m.CreatedAt.IsZero() {
		md["created_at"] = m.CreatedAt.Format(time.RFC3339)
	}
	if !m.UpdatedAt.IsZero() {
		md["updated_at"] = m.UpdatedAt.Format(time.RFC3339)
	}
	return md
}

func materialFromResult(id string, res vectorstore.Result) materials.Material {
	m := materials.Material{ID: id, Embedding: res.Vector}
	if res.Metadata != nil {
		m.Name = res.Metadata["name"]
		m.Description = res.Metadata["description"]
		m.UseCategory = res.Metadata["use_category"]
		m.Unit = res.Metadata["unit"]
		m.SKU = res.Metadata["sku"]
		if ts := res.Metadata["created_at"]; ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				m.CreatedAt = t
			}
		}
		if ts := res.Metadata["updated_at"]; ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				m.UpdatedAt = t
			}
		}
	}
	return m
}

// timeNow is overridden in tests needing deterministic timestamps.
var timeNow = time.Now
