// Package service composes the repository, search engine, batch
// ingestion, and price-list subsystems into the single facade the HTTP
// layer calls: one struct, functional options, one method per capability.
package service

import (
	"context"
	"time"

	"materialscat/internal/analytics"
	"materialscat/internal/ingestion"
	"materialscat/internal/materials"
	"materialscat/internal/pricelist"
	"materialscat/internal/repository"
	"materialscat/internal/search"
)

// Service is the single entry point the HTTP layer calls into.
type Service struct {
	repo      *repository.Repository
	search    *search.Service
	suggester *search.Suggester
	usage     analytics.Store
	ingestion *ingestion.Service
	prices    *pricelist.Registry
}

// Option configures the Service during construction.
type Option func(*Service)

// New constructs a Service from its required collaborators.
func New(repo *repository.Repository, searchSvc *search.Service, opts ...Option) *Service {
	s := &Service{repo: repo, search: searchSvc}
	for _, o := range opts {
		o(s)
	}
	return s
}

// WithIngestion wires the batch ingestion subsystem.
func WithIngestion(svc *ingestion.Service) Option { return func(s *Service) { s.ingestion = svc } }

// WithPriceLists wires the supplier price-list registry.
func WithPriceLists(reg *pricelist.Registry) Option { return func(s *Service) { s.prices = reg } }

// WithSuggester wires the autocomplete suggester.
func WithSuggester(sg *search.Suggester) Option { return func(s *Service) { s.suggester = sg } }

// WithAnalyticsStore wires the usage-analytics store for reporting reads.
func WithAnalyticsStore(store analytics.Store) Option {
	return func(s *Service) { s.usage = store }
}

// GetMaterial implements the repository's get operation.
func (s *Service) GetMaterial(ctx context.Context, id string) (materials.Material, error) {
	return s.repo.Get(ctx, id)
}

// GetMaterials implements the repository's batch get operation.
func (s *Service) GetMaterials(ctx context.Context, ids []string) ([]materials.Material, error) {
	return s.repo.GetBatch(ctx, ids)
}

// CreateMaterial persists a single already-enriched material.
func (s *Service) CreateMaterial(ctx context.Context, m materials.Material) (materials.Material, error) {
	return s.repo.Create(ctx, m)
}

// CreateMaterials persists a batch synchronously, returning per-item
// outcomes; one item's failure never blocks the rest.
func (s *Service) CreateMaterials(ctx context.Context, items []materials.Material) []repository.ItemOutcome {
	return s.repo.CreateBatch(ctx, items)
}

// UpdateMaterial applies patch to the stored material identified by id.
func (s *Service) UpdateMaterial(ctx context.Context, id string, patch func(*materials.Material)) (materials.Material, error) {
	return s.repo.Update(ctx, id, patch)
}

// DeleteMaterial removes a material from both stores.
func (s *Service) DeleteMaterial(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Search runs the hybrid search engine.
func (s *Service) Search(ctx context.Context, q search.AdvancedQuery) (search.SearchResponse, error) {
	return s.search.Search(ctx, q)
}

// Suggest returns prefix/contains completions from the configured sources,
// cached per prefix.
func (s *Service) Suggest(ctx context.Context, prefix string, limit int) ([]search.Suggestion, error) {
	if s.suggester == nil {
		return nil, nil
	}
	return s.suggester.Suggest(ctx, prefix, limit)
}

// AnalyticsRange returns per-day aggregated usage buckets for [from, to).
func (s *Service) AnalyticsRange(ctx context.Context, from, to time.Time) ([]analytics.DayBucket, error) {
	if s.usage == nil {
		return nil, nil
	}
	return analytics.AggregateRange(ctx, s.usage, from, to)
}

// AcceptBatch hands a batch of materials to the ingestion worker pool.
// Returns a backends-unavailable error if ingestion was not wired.
func (s *Service) AcceptBatch(ctx context.Context, items []ingestion.Item) (ingestion.AcceptResult, error) {
	if s.ingestion == nil {
		return ingestion.AcceptResult{}, errIngestionNotConfigured
	}
	return s.ingestion.Accept(ctx, items)
}

// BatchStatus returns a job's aggregate counters.
func (s *Service) BatchStatus(ctx context.Context, requestID string) (ingestion.Job, bool, error) {
	if s.ingestion == nil {
		return ingestion.Job{}, false, errIngestionNotConfigured
	}
	return s.ingestion.Status(ctx, requestID)
}

// BatchResults returns a job's per-item outcomes.
func (s *Service) BatchResults(ctx context.Context, requestID string) ([]ingestion.JobItem, bool, error) {
	if s.ingestion == nil {
		return nil, false, errIngestionNotConfigured
	}
	return s.ingestion.Results(ctx, requestID)
}

// IngestPriceList parses and persists one supplier upload.
func (s *Service) IngestPriceList(ctx context.Context, supplierID, pricelistID string, format pricelist.SourceFormat, data []byte) (pricelist.PriceList, error) {
	if s.prices == nil {
		return pricelist.PriceList{}, errPriceListsNotConfigured
	}
	return s.prices.Ingest(ctx, supplierID, pricelistID, format, data)
}

// LatestPriceList returns a supplier's most recent upload (GET
// /prices/{supplier_id}/latest).
func (s *Service) LatestPriceList(supplierID string) (pricelist.PriceList, bool) {
	if s.prices == nil {
		return pricelist.PriceList{}, false
	}
	return s.prices.Latest(supplierID)
}

// DeletePriceList cascades a supplier-scoped deletion (DELETE
// /prices/{supplier_id}).
func (s *Service) DeletePriceList(ctx context.Context, supplierID string) error {
	if s.prices == nil {
		return errPriceListsNotConfigured
	}
	return s.prices.Delete(ctx, supplierID)
}
