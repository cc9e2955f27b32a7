// Package vectorstore adapts the hybrid search engine's vector-similarity
// requirements onto a pluggable backend: Qdrant in production, an in-memory
// cosine-similarity index in tests and for the "none configured" case.
package vectorstore

import "context"

// Result is a single nearest-neighbor hit. Score is cosine similarity in
// [-1, 1] for the Qdrant and in-memory backends (higher is closer).
type Result struct {
	ID       string
	Score    float64
	Metadata map[string]string
	// Vector is populated by Get (a point-by-id lookup needs to return the
	// stored vector, not just its metadata); SimilaritySearch leaves it nil
	// since callers there already know the query vector.
	Vector []float32
}

// Point is one record for a batch write.
type Point struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Store is the minimum surface the search engine, the repository, and the
// enrichment pipeline require from a vector backend.
type Store interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	// BatchUpsert writes many points in one backend round trip.
	BatchUpsert(ctx context.Context, points []Point) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error)
	// Get retrieves one point by id. The vector store is the authoritative
	// record of existence for a material, so the repository's get/
	// get_batch operations read here on a cache miss rather than the SQL
	// store.
	Get(ctx context.Context, id string) (Result, bool, error)
	// BatchGet retrieves many points in one backend round trip, keyed by
	// the caller's ids; absent ids are simply missing from the map.
	BatchGet(ctx context.Context, ids []string) (map[string]Result, error)
}

// Dimensioned is implemented by backends that know their configured vector
// width, used to validate embeddings before upsert.
type Dimensioned interface {
	Dimension() int
}

// Closer is implemented by backends holding a live connection.
type Closer interface {
	Close() error
}
