package refdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 4)
		for j, r := range t {
			v[j%4] += float32(r % 7)
		}
		out[i] = v
	}
	return out, nil
}

func TestCollection_ExactLookupCaseAndWhitespace(t *testing.T) {
	c := New("units", fakeEmbedder{})
	require.NoError(t, c.Seed(context.Background(), []Entry{
		{CanonicalName: "килограмм", Aliases: []string{"кг", "kg"}},
	}))
	e, ok := c.LookupExact("  КГ  ")
	require.True(t, ok)
	assert.Equal(t, "килограмм", e.CanonicalName)

	_, ok = c.LookupExact("тонна")
	assert.False(t, ok)
}

func TestCollection_NearestOrdersByCosine(t *testing.T) {
	c := New("colors", nil)
	require.NoError(t, c.Update(context.Background(), []Entry{
		{CanonicalName: "красный", Embedding: []float32{1, 0, 0}},
		{CanonicalName: "белый", Embedding: []float32{0, 1, 0}},
	}))
	res := c.LookupNearest([]float32{0.9, 0.1, 0}, 2)
	require.Len(t, res, 2)
	assert.Equal(t, "красный", res[0].Entry.CanonicalName)
	assert.Greater(t, res[0].Score, res[1].Score)
}

func TestCollection_FuzzyToleratesMisspelling(t *testing.T) {
	c := New("colors", nil)
	require.NoError(t, c.Update(context.Background(), []Entry{
		{CanonicalName: "красный", Embedding: []float32{1}},
		{CanonicalName: "белый", Embedding: []float32{1}},
	}))
	res := c.LookupFuzzy("красны", 1)
	require.Len(t, res, 1)
	assert.Equal(t, "красный", res[0].Entry.CanonicalName)
	assert.GreaterOrEqual(t, res[0].Score, 0.75)
}

func TestCollection_UpdateIsAtomicForConcurrentReaders(t *testing.T) {
	c := New("units", nil)
	require.NoError(t, c.Update(context.Background(), []Entry{{CanonicalName: "шт", Embedding: []float32{1}}}))
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			c.LookupExact("шт")
		}
		close(done)
	}()
	require.NoError(t, c.Update(context.Background(), []Entry{
		{CanonicalName: "шт", Embedding: []float32{1}},
		{CanonicalName: "кг", Embedding: []float32{2}},
	}))
	<-done
	assert.Equal(t, 2, c.Len())
}
