package search

import "strings"

// maxSuggestLimit bounds a single suggest() call.
const maxSuggestLimit = 20

// Suggestion is one autocomplete candidate and the source it was drawn from,
// kept for diagnostics/analytics even though only Text reaches the client.
type Suggestion struct {
	Text   string `json:"text"`
	Source string `json:"source"` // "popular_query" | "material_name" | "category"
}

// Suggest interleaves three candidate sources round-robin — recent popular
// queries, material names, and categories, each already filtered to those
// matching prefix by the caller — deduplicating by lowercase form and
// capping at limit.
func Suggest(prefix string, popularQueries, materialNames, categories []string, limit int) []Suggestion {
	if limit <= 0 || limit > maxSuggestLimit {
		limit = maxSuggestLimit
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))

	sources := [][]string{
		filterPrefix(popularQueries, prefix),
		filterContains(materialNames, prefix),
		filterPrefix(categories, prefix),
	}
	sourceNames := []string{"popular_query", "material_name", "category"}

	seen := make(map[string]bool, limit)
	out := make([]Suggestion, 0, limit)
	idx := make([]int, len(sources))
	for len(out) < limit {
		advanced := false
		for s := range sources {
			if idx[s] >= len(sources[s]) {
				continue
			}
			advanced = true
			text := sources[s][idx[s]]
			idx[s]++
			key := strings.ToLower(text)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Suggestion{Text: text, Source: sourceNames[s]})
			if len(out) >= limit {
				break
			}
		}
		if !advanced {
			break
		}
	}
	return out
}

func filterPrefix(items []string, prefix string) []string {
	if prefix == "" {
		return items
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if strings.HasPrefix(strings.ToLower(it), prefix) {
			out = append(out, it)
		}
	}
	return out
}

func filterContains(items []string, prefix string) []string {
	if prefix == "" {
		return items
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it), prefix) {
			out = append(out, it)
		}
	}
	return out
}
