package search

import (
	"regexp"
	"strings"
	"time"
)

// maxResultsCap bounds AdvancedQuery.Options.MaxResults.
const maxResultsCap = 500

// maxPageSize bounds page-based pagination's size.
const maxPageSize = 100

// Filters restricts an AdvancedQuery to materials matching every populated
// constraint; an empty/zero field means "no constraint".
type Filters struct {
	Categories          []string
	Units               []string
	SKUPattern          string // glob: '*' any run, '?' any single char
	CreatedFrom         time.Time
	CreatedTo           time.Time
	UpdatedFrom         time.Time
	UpdatedTo           time.Time
	SimilarityThreshold *float64
}

// Page is page-based pagination input.
type Page struct {
	Page int
	Size int
}

// AdvancedOptions is the per-request options object of an AdvancedQuery.
type AdvancedOptions struct {
	Highlight    bool
	IncludeTotal bool
	MaxResults   int
}

// AdvancedQuery is the full advanced-search request shape.
type AdvancedQuery struct {
	Text    string
	Mode    Mode
	Filters Filters
	Sort    []SortKey
	// Page and Cursor are mutually exclusive per request; Search rejects a
	// query that sets both with a validation error.
	Page    *Page
	Cursor  string
	Options AdvancedOptions
}

// SearchResponse is the advanced-search result: the current page of items, an
// optional total count, an opaque cursor for the next page, and metadata
// callers surface to clients (degraded mode, the backend diagnostics).
type SearchResponse struct {
	Query      string
	Items      []Item
	Total      *int
	NextCursor string
	Degraded   bool
	Diagnostics
}

// skuPatternToRegexp compiles a sku_pattern glob ('*' any run, '?' any
// single char) into an anchored, case-sensitive regular expression.
func skuPatternToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// ApplyFilters drops items that fail any populated constraint in f
// (the post-retrieval pass is run unconditionally on every backend's
// results, so SQL-side pushdown stays purely an optimization, never a
// correctness requirement).
func ApplyFilters(items []Item, f Filters) ([]Item, error) {
	var skuRe *regexp.Regexp
	if f.SKUPattern != "" {
		re, err := skuPatternToRegexp(f.SKUPattern)
		if err != nil {
			return nil, err
		}
		skuRe = re
	}

	out := make([]Item, 0, len(items))
	for _, it := range items {
		if len(f.Categories) > 0 && !containsFold(f.Categories, it.Metadata["use_category"]) {
			continue
		}
		if len(f.Units) > 0 && !containsFold(f.Units, it.Metadata["unit"]) {
			continue
		}
		if skuRe != nil && !skuRe.MatchString(it.Metadata["sku"]) {
			continue
		}
		if !withinHalfOpenRange(it.Metadata["created_at"], f.CreatedFrom, f.CreatedTo) {
			continue
		}
		if !withinHalfOpenRange(it.Metadata["updated_at"], f.UpdatedFrom, f.UpdatedTo) {
			continue
		}
		if f.SimilarityThreshold != nil && it.Score < *f.SimilarityThreshold {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func containsFold(list []string, v string) bool {
	for _, l := range list {
		if strings.EqualFold(l, v) {
			return true
		}
	}
	return false
}

// withinHalfOpenRange reports whether value (an RFC3339 timestamp) falls in
// the half-open range [from, to) ("Date ranges are half-open
// [from, to)"). A zero from/to leaves that side of the range unconstrained.
func withinHalfOpenRange(value string, from, to time.Time) bool {
	if from.IsZero() && to.IsZero() {
		return true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return from.IsZero() && to.IsZero()
	}
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// paginate applies either page-based offset pagination or cursor-based
// resumption to an already filtered-and-sorted item list, returning the
// page slice and whether more rows may exist beyond it.
func paginate(items []Item, page *Page, cursor Cursor, hasCursor bool, size int) (pageItems []Item, more bool) {
	start := 0
	if hasCursor {
		for i, it := range items {
			if it.ID == cursor.LastID {
				start = i + 1
				break
			}
		}
	} else if page != nil {
		start = (page.Page - 1) * page.Size
	}
	if start < 0 || start >= len(items) {
		return nil, false
	}
	end := start + size
	if end >= len(items) {
		return items[start:], false
	}
	return items[start:end], true
}

// clampMaxResults bounds a requested page size to the hard cap,
// falling back to a sane default when unset.
func clampMaxResults(n int) int {
	if n <= 0 {
		return 20
	}
	if n > maxResultsCap {
		return maxResultsCap
	}
	return n
}

func clampPageSize(n int) int {
	if n <= 0 {
		return 1
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
