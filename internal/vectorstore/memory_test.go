package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_UpsertGetDelete(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "m1", []float32{1, 0}, map[string]string{"name": "cement"}))

	got, ok, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, got.Vector)
	assert.Equal(t, "cement", got.Metadata["name"])

	require.NoError(t, s.Delete(ctx, "m1"))
	_, ok, err = s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_BatchUpsertBatchGet(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.BatchUpsert(ctx, []Point{
		{ID: "m1", Vector: []float32{1, 0}, Metadata: map[string]string{"name": "cement"}},
		{ID: "m2", Vector: []float32{0, 1}, Metadata: map[string]string{"name": "brick"}},
	}))

	got, err := s.BatchGet(ctx, []string{"m1", "m2", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{1, 0}, got["m1"].Vector)
	assert.Equal(t, "brick", got["m2"].Metadata["name"])
	_, ok := got["missing"]
	assert.False(t, ok)
}

func TestMemory_SimilaritySearchOrdersByCosine(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, "close", []float32{1, 0.1}, nil))
	require.NoError(t, s.Upsert(ctx, "far", []float32{0, 1}, nil))
	require.NoError(t, s.Upsert(ctx, "exact", []float32{1, 0}, nil))

	res, err := s.SimilaritySearch(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "exact", res[0].ID)
	assert.Equal(t, "close", res[1].ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
}

func TestMemory_SimilaritySearchAppliesFilter(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0}, map[string]string{"unit": "кг"}))
	require.NoError(t, s.Upsert(ctx, "b", []float32{1, 0}, map[string]string{"unit": "шт"}))

	res, err := s.SimilaritySearch(ctx, []float32{1, 0}, 10, map[string]string{"unit": "шт"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].ID)
}

func TestMemory_UpsertCopiesInputs(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	v := []float32{1, 2}
	md := map[string]string{"k": "v"}
	require.NoError(t, s.Upsert(ctx, "m1", v, md))

	v[0] = 9
	md["k"] = "mutated"

	got, ok, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float32(1), got.Vector[0])
	assert.Equal(t, "v", got.Metadata["k"])
}

type countingLimiter struct{ acquired, released int }

func (c *countingLimiter) Acquire(context.Context) error { c.acquired++; return nil }
func (c *countingLimiter) Release()                      { c.released++ }

func TestLimited_HoldsSlotPerCall(t *testing.T) {
	lim := &countingLimiter{}
	s := NewLimited(NewMemory(), lim)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "m1", []float32{1}, nil))
	require.NoError(t, s.BatchUpsert(ctx, []Point{{ID: "m2", Vector: []float32{1}}}))
	_, _, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	_, err = s.BatchGet(ctx, []string{"m1", "m2"})
	require.NoError(t, err)
	_, err = s.SimilaritySearch(ctx, []float32{1}, 1, nil)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "m1"))

	assert.Equal(t, 6, lim.acquired)
	assert.Equal(t, 6, lim.released)
}
