package normalize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialscat/internal/apierrors"
	"materialscat/internal/refdata"
)

func units(t *testing.T) *refdata.Collection {
	t.Helper()
	c := refdata.New("units", nil)
	require.NoError(t, c.Update(context.Background(), []refdata.Entry{
		{CanonicalName: "штука", Aliases: []string{"шт"}, Embedding: []float32{1, 0, 0}},
		{CanonicalName: "килограмм", Aliases: []string{"кг"}, Embedding: []float32{0, 1, 0}},
	}))
	return c
}

func TestUnits_ExactAlias(t *testing.T) {
	name, err := Units(context.Background(), units(t), "шт", nil, Thresholds{Vector: 0.85, Fuzzy: 0.75})
	require.NoError(t, err)
	assert.Equal(t, "штука", name)
}

func TestUnits_VectorFallback(t *testing.T) {
	name, err := Units(context.Background(), units(t), "pcs", []float32{0.95, 0.05, 0}, Thresholds{Vector: 0.85, Fuzzy: 0.75})
	require.NoError(t, err)
	assert.Equal(t, "штука", name)
}

func TestUnits_FuzzyFallback(t *testing.T) {
	name, err := Units(context.Background(), units(t), "штка", nil, Thresholds{Vector: 0.85, Fuzzy: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "штука", name)
}

func TestUnits_UnknownFails(t *testing.T) {
	_, err := Units(context.Background(), units(t), "миллилитр", []float32{0, 0, 1}, Thresholds{Vector: 0.99, Fuzzy: 0.99})
	require.Error(t, err)
	e, ok := apierrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeUnitUnknown, e.Code)
}

func TestColors_NilInputSkipsLookup(t *testing.T) {
	name, err := Colors(context.Background(), refdata.New("colors", nil), "", nil, Thresholds{Vector: 0.82, Fuzzy: 0.75})
	require.NoError(t, err)
	assert.Equal(t, "", name)
}
