// Package search implements the hybrid retrieval engine: query planning,
// parallel fan-out across the SQL and vector stores, weighted score fusion,
// cursor-based pagination, highlighting, and autocomplete suggestions.
package search

// Mode selects which backend(s) a query is evaluated against.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeSQL    Mode = "sql"
	ModeFuzzy  Mode = "fuzzy"
	ModeHybrid Mode = "hybrid"
)

// DefaultMode is used when a request does not specify one.
const DefaultMode = ModeHybrid

// Options configures a single search call.
type Options struct {
	Mode Mode
	// K is the desired page size.
	K int
	// Cursor, when non-empty, resumes a prior query at the position it encodes.
	Cursor string
	// Filter restricts results to materials whose metadata matches every
	// key/value pair (category, unit, color, tenant, ...).
	Filter map[string]string
	// Tenant scopes the query to a single tenant's catalog.
	Tenant string
	// IncludeSnippet requests a highlighted description excerpt per result.
	IncludeSnippet bool
}

// Item is a single fused result.
type Item struct {
	ID          string
	Score       float64
	Snippet     string
	Text        string
	Metadata    map[string]string
	Explanation map[string]any
}

// Response is the outcome of a search call, including the cursor for the
// next page when more results exist.
type Response struct {
	Query      string
	Items      []Item
	NextCursor string
	Debug      map[string]any
}
