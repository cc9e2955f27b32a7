package pricelist

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"materialscat/internal/vectorstore"
)

// VectorStore is the per-supplier collection a Store writes price rows
// into (one vector collection "supplier_{id}_prices" per
// supplier). Construction of the collection itself is the caller's
// responsibility, keyed by supplier_id.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (vectorstore.Result, bool, error)
}

// Embedder computes a row's search vector from its raw name, so a price
// row can be recalled the same way a Material is ("persists
// them into a vector store").
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// CollectionFactory opens (creating if absent) the vector collection
// scoped to one supplier. Implementations typically wrap
// vectorstore.NewQdrant(dsn, "supplier_"+supplierID+"_prices", dims, metric).
type CollectionFactory func(ctx context.Context, supplierID string) (VectorStore, error)

// Registry persists ingested price lists, one vector collection per
// supplier, and tracks each supplier's most recent upload for the
// "latest" lookup.
type Registry struct {
	open     CollectionFactory
	embedder Embedder

	mu      chan struct{} // binary semaphore guarding the latest map
	latest  map[string]PriceList
}

// NewRegistry builds a Registry. embedder may be nil, in which case rows
// are stored with a zero vector and are reachable only by supplier scope,
// not similarity search.
func NewRegistry(open CollectionFactory, embedder Embedder) *Registry {
	r := &Registry{open: open, embedder: embedder, mu: make(chan struct{}, 1), latest: make(map[string]PriceList)}
	r.mu <- struct{}{}
	return r
}

func (r *Registry) lock()   { <-r.mu }
func (r *Registry) unlock() { r.mu <- struct{}{} }

// Ingest parses, validates, and persists one upload. Malformed rows are
// skipped individually (reflected in PriceList.Rejected); a parse failure
// that prevents reading the file at all (missing required column, unreadable
// workbook) is returned as an error and nothing is persisted.
func (r *Registry) Ingest(ctx context.Context, supplierID, pricelistID string, format SourceFormat, data []byte) (PriceList, error) {
	rows, rejected, err := Parse(bytes.NewReader(data), format)
	if err != nil {
		return PriceList{}, fmt.Errorf("pricelist: parse: %w", err)
	}

	store, err := r.open(ctx, supplierID)
	if err != nil {
		return PriceList{}, fmt.Errorf("pricelist: open supplier collection: %w", err)
	}

	names := make([]string, len(rows))
	for i, row := range rows {
		names[i] = row.RawName
	}
	vectors, err := r.embedVectors(ctx, names)
	if err != nil {
		return PriceList{}, fmt.Errorf("pricelist: embed rows: %w", err)
	}

	for i, row := range rows {
		rowID := fmt.Sprintf("%s:%s:%d", supplierID, pricelistID, i)
		meta := map[string]string{
			"supplier_id":  supplierID,
			"pricelist_id": pricelistID,
			"raw_name":     row.RawName,
			"unit":         row.Unit,
			"sku":          row.SKU,
			"description":  row.Description,
			"price":        fmt.Sprintf("%g", row.Price),
		}
		var vec []float32
		if vectors != nil {
			vec = vectors[i]
		}
		if err := store.Upsert(ctx, rowID, vec, meta); err != nil {
			return PriceList{}, fmt.Errorf("pricelist: upsert row %d: %w", i, err)
		}
	}

	pl := PriceList{
		SupplierID:   supplierID,
		PricelistID:  pricelistID,
		UploadedAt:   time.Now(),
		Rows:         rows,
		Rejected:     rejected,
		SourceFormat: format,
	}

	r.lock()
	r.latest[supplierID] = pl
	r.unlock()

	return pl, nil
}

func (r *Registry) embedVectors(ctx context.Context, names []string) ([][]float32, error) {
	if r.embedder == nil || len(names) == 0 {
		return nil, nil
	}
	return r.embedder.Embed(ctx, names)
}

// Latest returns the most recently ingested list for a supplier (GET
// GET /prices/{supplier_id}/latest).
func (r *Registry) Latest(supplierID string) (PriceList, bool) {
	r.lock()
	defer r.unlock()
	pl, ok := r.latest[supplierID]
	return pl, ok
}

// Delete drops a supplier's tracked list and every row in its collection
// (DELETE /prices/{supplier_id}: cascade delete; "deletion is by
// supplier scope").
func (r *Registry) Delete(ctx context.Context, supplierID string) error {
	r.lock()
	pl, ok := r.latest[supplierID]
	delete(r.latest, supplierID)
	r.unlock()
	if !ok {
		return nil
	}

	store, err := r.open(ctx, supplierID)
	if err != nil {
		return fmt.Errorf("pricelist: open supplier collection: %w", err)
	}
	for i := range pl.Rows {
		rowID := fmt.Sprintf("%s:%s:%d", supplierID, pl.PricelistID, i)
		if err := store.Delete(ctx, rowID); err != nil {
			return fmt.Errorf("pricelist: delete row %d: %w", i, err)
		}
	}
	return nil
}
