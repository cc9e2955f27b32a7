package analytics

import (
	"context"
	"sort"
	"strings"
	"time"
)

// DayBucket is one day's aggregated usage, the unit returned by the
// analytics reporting endpoint.
type DayBucket struct {
	Day           string         `json:"day"`
	Queries       int            `json:"queries"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	Results       int            `json:"results"`
	ByMode        map[string]int `json:"by_mode"`
}

// AggregateRange folds every record in the half-open day range [from, to)
// into per-day buckets, skipping days with no data. Reading a day that was
// never written is not an error; the store simply returns nothing for it.
func AggregateRange(ctx context.Context, store Store, from, to time.Time) ([]DayBucket, error) {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC()
	var out []DayBucket
	for day := from; day.Before(to); day = day.Add(24 * time.Hour) {
		key := day.Format("2006-01-02")
		recs, err := store.Day(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			continue
		}
		b := DayBucket{Day: key, ByMode: make(map[string]int)}
		var totalMS int64
		for _, r := range recs {
			b.Queries++
			b.Results += r.ResultCount
			b.ByMode[r.Mode]++
			totalMS += r.DurationMS
		}
		b.AvgDurationMS = float64(totalMS) / float64(b.Queries)
		out = append(out, b)
	}
	return out, nil
}

// PopularQueries returns the most frequent normalized query texts over the
// last days buckets ending at now, most frequent first. Empty texts
// (filter-only queries) are skipped.
func PopularQueries(ctx context.Context, store Store, now time.Time, days, limit int) ([]string, error) {
	if days <= 0 {
		days = 1
	}
	if limit <= 0 {
		limit = 20
	}
	counts := make(map[string]int)
	display := make(map[string]string)
	for i := 0; i < days; i++ {
		key := now.UTC().Add(-time.Duration(i) * 24 * time.Hour).Format("2006-01-02")
		recs, err := store.Day(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			text := strings.TrimSpace(r.NormalizedText)
			if text == "" {
				continue
			}
			lc := strings.ToLower(text)
			counts[lc]++
			if _, ok := display[lc]; !ok {
				display[lc] = text
			}
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = display[k]
	}
	return out, nil
}
