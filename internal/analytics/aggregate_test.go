package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	days map[string][]Record
}

func newMemStore() *memStore { return &memStore{days: make(map[string][]Record)} }

func (s *memStore) Append(_ context.Context, day string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[day] = append(s.days[day], rec)
	return nil
}

func (s *memStore) Day(_ context.Context, day string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.days[day], nil
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestAggregateRange_BucketsPerDay(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "2026-07-01", Record{Mode: "hybrid", DurationMS: 10, ResultCount: 3}))
	require.NoError(t, store.Append(ctx, "2026-07-01", Record{Mode: "vector", DurationMS: 30, ResultCount: 1}))
	require.NoError(t, store.Append(ctx, "2026-07-03", Record{Mode: "sql", DurationMS: 5, ResultCount: 0}))

	buckets, err := AggregateRange(ctx, store, day("2026-07-01"), day("2026-07-04"))
	require.NoError(t, err)
	require.Len(t, buckets, 2) // the empty day is skipped

	first := buckets[0]
	assert.Equal(t, "2026-07-01", first.Day)
	assert.Equal(t, 2, first.Queries)
	assert.Equal(t, 4, first.Results)
	assert.InDelta(t, 20.0, first.AvgDurationMS, 1e-9)
	assert.Equal(t, map[string]int{"hybrid": 1, "vector": 1}, first.ByMode)
}

func TestAggregateRange_HalfOpenUpperBound(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "2026-07-02", Record{Mode: "sql"}))

	buckets, err := AggregateRange(ctx, store, day("2026-07-01"), day("2026-07-02"))
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestPopularQueries_OrdersByFrequency(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	now := day("2026-07-02").Add(12 * time.Hour)
	today := "2026-07-02"
	yesterday := "2026-07-01"

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, today, Record{NormalizedText: "цемент м500"}))
	}
	require.NoError(t, store.Append(ctx, yesterday, Record{NormalizedText: "кирпич"}))
	require.NoError(t, store.Append(ctx, today, Record{NormalizedText: ""})) // filter-only, skipped

	popular, err := PopularQueries(ctx, store, now, 2, 10)
	require.NoError(t, err)
	require.Len(t, popular, 2)
	assert.Equal(t, "цемент м500", popular[0])
	assert.Equal(t, "кирпич", popular[1])
}

func TestPopularQueries_DeduplicatesByLowercase(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	now := day("2026-07-02")
	require.NoError(t, store.Append(ctx, "2026-07-02", Record{NormalizedText: "Цемент"}))
	require.NoError(t, store.Append(ctx, "2026-07-02", Record{NormalizedText: "цемент"}))

	popular, err := PopularQueries(ctx, store, now, 1, 10)
	require.NoError(t, err)
	require.Len(t, popular, 1)
	assert.Equal(t, "Цемент", popular[0])
}
