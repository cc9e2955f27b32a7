package search

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"materialscat/internal/cache"
)

// Source supplies one suggestion candidate list (popular queries, material
// names, categories). Sources return their full candidate set; prefix
// filtering happens in Suggest.
type Source func(ctx context.Context) ([]string, error)

// StaticSource adapts a fixed list into a Source, for tests and seeding.
func StaticSource(items []string) Source {
	return func(context.Context) ([]string, error) { return items, nil }
}

// Suggester serves autocomplete requests from three candidate sources,
// caching the interleaved result per prefix under "suggest:{prefix}".
type Suggester struct {
	popular    Source
	names      Source
	categories Source
	aside      *cache.Aside
	ttl        time.Duration
}

// NewSuggester builds a Suggester. Any source may be nil (that source then
// contributes nothing); aside may be nil to disable caching.
func NewSuggester(popular, names, categories Source, aside *cache.Aside, ttl time.Duration) *Suggester {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Suggester{popular: popular, names: names, categories: categories, aside: aside, ttl: ttl}
}

// Suggest returns up to limit completions for prefix, drawing from the
// three sources round-robin and deduplicating by lowercase form. The cached
// entry always holds the full candidate set for the prefix, so callers with
// different limits share one entry.
func (s *Suggester) Suggest(ctx context.Context, prefix string, limit int) ([]Suggestion, error) {
	if limit <= 0 || limit > maxSuggestLimit {
		limit = maxSuggestLimit
	}
	key := "suggest:" + strings.ToLower(strings.TrimSpace(prefix))

	if s.aside == nil {
		full, err := s.build(ctx, prefix)
		if err != nil {
			return nil, err
		}
		return clip(full, limit), nil
	}

	raw, err := s.aside.GetOrLoad(ctx, key, s.ttl, func(ctx context.Context) ([]byte, error) {
		full, err := s.build(ctx, prefix)
		if err != nil {
			return nil, err
		}
		return json.Marshal(full)
	})
	if err != nil {
		return nil, err
	}
	var full []Suggestion
	if err := json.Unmarshal(raw, &full); err != nil {
		return nil, err
	}
	return clip(full, limit), nil
}

func (s *Suggester) build(ctx context.Context, prefix string) ([]Suggestion, error) {
	load := func(src Source) ([]string, error) {
		if src == nil {
			return nil, nil
		}
		return src(ctx)
	}
	popular, err := load(s.popular)
	if err != nil {
		return nil, err
	}
	names, err := load(s.names)
	if err != nil {
		return nil, err
	}
	categories, err := load(s.categories)
	if err != nil {
		return nil, err
	}
	return Suggest(prefix, popular, names, categories, maxSuggestLimit), nil
}

func clip(s []Suggestion, limit int) []Suggestion {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
