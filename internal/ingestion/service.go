package ingestion

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"materialscat/internal/apierrors"
	"materialscat/internal/enrichment"
	"materialscat/internal/materials"
	"materialscat/internal/repository"
)

// retryBackoff is the transient-failure retry schedule: 1s/4s/16s with
// ±25% jitter.
var retryBackoff = []time.Duration{time.Second, 4 * time.Second, 16 * time.Second}

const maxAttempts = 3

// Enricher is the capability a worker needs to run the four-stage
// enrichment pipeline for one item.
type Enricher interface {
	Enrich(ctx context.Context, name, description string) (enrichment.Result, error)
}

// Config bounds batch acceptance and processing.
type Config struct {
	MaxItemsPerRequest int
	WorkerPool         int
	ChunkSize          int
	ItemTimeout        time.Duration
}

// DefaultConfig returns the documented deployment defaults.
func DefaultConfig() Config {
	return Config{MaxItemsPerRequest: 10000, WorkerPool: 5, ChunkSize: 50, ItemTimeout: 60 * time.Second}
}

// AcceptResult is returned immediately from Accept.
type AcceptResult struct {
	RequestID           string
	Total               int
	EstimatedCompletion time.Time
}

// Service accepts batches, persists per-item job rows, and runs the
// enrichment pipeline against a bounded worker pool.
type Service struct {
	store      Store
	pipeline   Enricher
	repo       *repository.Repository
	cfg        Config
	throughput *Throughput
	log        zerolog.Logger

	// queue bounds total in-flight items across every accepted-but-not-yet-
	// settled batch at max_items_per_request, released as
	// each item finishes processing rather than when its batch completes.
	queue *semaphore.Weighted
}

// New constructs a Service.
func New(store Store, pipeline Enricher, repo *repository.Repository, cfg Config, log zerolog.Logger) *Service {
	if cfg.WorkerPool <= 0 {
		cfg.WorkerPool = 5
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	if cfg.MaxItemsPerRequest <= 0 {
		cfg.MaxItemsPerRequest = 10000
	}
	return &Service{
		store: store, pipeline: pipeline, repo: repo, cfg: cfg,
		throughput: NewThroughput(0.3),
		log:        log.With().Str("component", "ingestion.Service").Logger(),
		queue:      semaphore.NewWeighted(int64(cfg.MaxItemsPerRequest)),
	}
}

// Accept validates and persists a batch request, then launches asynchronous
// processing and returns immediately. Validation
// rejects the whole request outright; processing failures are per-item.
func (s *Service) Accept(ctx context.Context, items []Item) (AcceptResult, error) {
	if len(items) > s.cfg.MaxItemsPerRequest {
		return AcceptResult{}, apierrors.New(apierrors.CodeValidation,
			fmt.Sprintf("batch has %d items, exceeds max_items_per_request=%d", len(items), s.cfg.MaxItemsPerRequest))
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.Name == "" || it.Unit == "" {
			return AcceptResult{}, apierrors.Validation("items", "every item requires name and unit")
		}
		if it.MaterialID != "" {
			if seen[it.MaterialID] {
				return AcceptResult{}, apierrors.New(apierrors.CodeConflict, fmt.Sprintf("duplicate material_id %q in request", it.MaterialID))
			}
			seen[it.MaterialID] = true
		}
	}
	for i := range items {
		if items[i].MaterialID == "" {
			items[i].MaterialID = uuid.NewString()
		}
	}

	weight := int64(len(items))
	if weight == 0 {
		weight = 1
	}
	if !s.queue.TryAcquire(weight) {
		return AcceptResult{}, apierrors.New(apierrors.CodeBackpressure, "batch worker queue is full, try again later")
	}

	requestID := uuid.NewString()
	if err := s.store.CreateJob(ctx, requestID, items); err != nil {
		s.queue.Release(weight)
		return AcceptResult{}, fmt.Errorf("ingestion: persist job rows: %w", err)
	}

	go s.process(requestID, items)

	return AcceptResult{
		RequestID:           requestID,
		Total:               len(items),
		EstimatedCompletion: s.throughput.Estimate(time.Now(), len(items)),
	}, nil
}

// process runs the worker pool for one accepted batch. It never returns an
// error to a caller: individual item outcomes are recorded via the job
// store ("a single item's failure does not abort the batch").
func (s *Service) process(requestID string, items []Item) {
	workers := semaphore.NewWeighted(int64(s.cfg.WorkerPool))
	ctx := context.Background()

	for start := 0; start < len(items); start += s.cfg.ChunkSize {
		end := start + s.cfg.ChunkSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]
		for _, it := range chunk {
			if err := workers.Acquire(ctx, 1); err != nil {
				return
			}
			it := it
			go func() {
				defer workers.Release(1)
				defer s.queue.Release(1) // frees this item's backpressure slot
				s.processItem(requestID, it)
				s.throughput.Observe(1, time.Now())
			}()
		}
	}
	// Drain: acquiring the full worker weight blocks until every in-flight
	// item has released, i.e. the whole batch has settled.
	_ = workers.Acquire(ctx, int64(s.cfg.WorkerPool))
}

// processItem runs one item through the enrichment pipeline with the
// retry/backoff policy: up to maxAttempts, transient failures
// only, each attempt bounded by the configured per-item deadline.
func (s *Service) processItem(requestID string, it Item) {
	if err := s.store.UpdateItem(context.Background(), requestID, it.MaterialID, func(ji *JobItem) {
		ji.Status = StatusProcessing
	}); err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID).Str("material_id", it.MaterialID).Msg("mark item processing failed")
	}

	var result enrichment.Result
	var lastErr error
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		itemCtx, cancel := context.WithTimeout(context.Background(), s.itemTimeout())
		result, lastErr = s.pipeline.Enrich(itemCtx, it.Name, "")
		cancel()
		if lastErr == nil {
			break
		}
		if !isTransient(lastErr) {
			break
		}
		if attempts < maxAttempts {
			time.Sleep(jitter(retryBackoff[attempts-1], 0.25))
		}
	}

	if lastErr != nil {
		err := s.store.UpdateItem(context.Background(), requestID, it.MaterialID, func(ji *JobItem) {
			ji.Status = StatusFailed
			ji.Attempts = attempts
			ji.LastAttemptAt = time.Now()
			ji.Error = lastErr.Error()
		})
		if err != nil {
			s.log.Warn().Err(err).Str("request_id", requestID).Str("material_id", it.MaterialID).Msg("mark item failed transition failed")
		}
		return
	}

	if s.repo != nil {
		m := materials.Material{ID: it.MaterialID, Name: it.Name, Unit: it.Unit, SKU: result.SKU, Embedding: result.EmbeddingCombined}
		if _, err := s.repo.Create(context.Background(), m); err != nil {
			s.log.Warn().Err(err).Str("material_id", it.MaterialID).Msg("persist enriched material failed")
		}
	}

	err := s.store.UpdateItem(context.Background(), requestID, it.MaterialID, func(ji *JobItem) {
		ji.Status = StatusCompleted
		ji.Attempts = attempts
		ji.LastAttemptAt = time.Now()
		ji.SKU = result.SKU
		ji.Similarity = result.SKUSimilarity
	})
	if err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID).Str("material_id", it.MaterialID).Msg("mark item completed transition failed")
	}
}

func (s *Service) itemTimeout() time.Duration {
	if s.cfg.ItemTimeout <= 0 {
		return 60 * time.Second
	}
	return s.cfg.ItemTimeout
}

// isTransient classifies an enrichment failure as retriable: embedding/
// vector/SQL timeouts and backend unavailability. Validation and
// UnitUnknown/ColorUnknown/EmbeddingShape are not retried.
func isTransient(err error) bool {
	switch apierrors.CodeOf(err) {
	case apierrors.CodeValidation, apierrors.CodeUnitUnknown, apierrors.CodeColorUnknown, apierrors.CodeEmbeddingShape, apierrors.CodeConflict:
		return false
	case apierrors.CodeTimeout, apierrors.CodeEmbeddingUnavailable, apierrors.CodeBackendsUnavailable, apierrors.CodeInternal:
		return true
	default:
		return true
	}
}

func jitter(d time.Duration, frac float64) time.Duration {
	delta := (rand.Float64()*2 - 1) * frac
	return time.Duration(float64(d) * (1 + delta))
}

// Status returns the aggregate counters for one request.
func (s *Service) Status(ctx context.Context, requestID string) (Job, bool, error) {
	return s.store.Job(ctx, requestID)
}

// Results returns the per-item outcomes for one request.
func (s *Service) Results(ctx context.Context, requestID string) ([]JobItem, bool, error) {
	return s.store.Items(ctx, requestID)
}
