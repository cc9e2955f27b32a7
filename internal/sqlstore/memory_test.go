package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_IndexSearchRemove(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Index(ctx, "m1", "Цемент М500 мешок", map[string]string{"name": "Цемент М500"}))
	require.NoError(t, s.Index(ctx, "m2", "Кирпич керамический", map[string]string{"name": "Кирпич"}))

	res, err := s.Search(ctx, "цемент", 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "m1", res[0].ID)

	require.NoError(t, s.Remove(ctx, "m1"))
	res, err = s.Search(ctx, "цемент", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestMemory_SearchRanksByTermCount(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Index(ctx, "once", "кирпич обычный", nil))
	require.NoError(t, s.Index(ctx, "twice", "кирпич кирпич двойной", nil))

	res, err := s.Search(ctx, "кирпич", 10)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "twice", res[0].ID)
}

func TestMemory_GetByID(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Index(ctx, "m1", "песок речной", map[string]string{"unit": "т"}))

	r, ok, err := s.GetByID(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "песок речной", r.Text)
	assert.Equal(t, "т", r.Metadata["unit"])

	_, ok, err = s.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_DistinctMetadata(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Index(ctx, "m1", "a", map[string]string{"use_category": "сухие смеси"}))
	require.NoError(t, s.Index(ctx, "m2", "b", map[string]string{"use_category": "кирпич"}))
	require.NoError(t, s.Index(ctx, "m3", "c", map[string]string{"use_category": "кирпич"}))
	require.NoError(t, s.Index(ctx, "m4", "d", nil))

	lister, ok := s.(Lister)
	require.True(t, ok)
	vals, err := lister.DistinctMetadata(ctx, "use_category", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"кирпич", "сухие смеси"}, vals)
}
