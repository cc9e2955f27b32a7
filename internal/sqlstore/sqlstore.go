// Package sqlstore adapts the hybrid search engine's exact/trigram/full-text
// requirements onto a pluggable SQL backend: Postgres (pg_trgm + tsvector) in
// production, an in-memory term-count index in tests.
package sqlstore

import "context"

// Result is a single hit from the SQL-backed search path.
type Result struct {
	ID       string
	Score    float64
	Snippet  string
	Text     string
	Metadata map[string]string
}

// Store is the minimum surface the search engine requires from a SQL
// full-text/trigram backend.
type Store interface {
	Index(ctx context.Context, id string, text string, metadata map[string]string) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	GetByID(ctx context.Context, id string) (Result, bool, error)
}

// SnippetProvider is implemented by backends able to produce a
// query-highlighted excerpt server-side (Postgres ts_headline).
type SnippetProvider interface {
	SnippetForID(ctx context.Context, id, lang, query string) (string, bool, error)
}

// Lister is implemented by backends able to enumerate distinct metadata
// values, used as the material-name and category sources for autocomplete.
type Lister interface {
	DistinctMetadata(ctx context.Context, key string, limit int) ([]string, error)
}

// Closer is implemented by backends holding a live connection.
type Closer interface {
	Close()
}
