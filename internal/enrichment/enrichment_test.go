package enrichment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialscat/internal/cache"
	"materialscat/internal/combinedembed"
	"materialscat/internal/materials"
	"materialscat/internal/normalize"
	"materialscat/internal/parser"
	"materialscat/internal/refdata"
	"materialscat/internal/skusearch"
	"materialscat/internal/vectorstore"
)

type fakeParser struct {
	out parser.Parsed
	err error
}

func (f *fakeParser) Parse(context.Context, string, string) (parser.Parsed, error) { return f.out, f.err }

type fakeEmbedder struct {
	dim int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		for j := range v {
			v[j] = float32(len(t)+j) / 10
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func buildPipeline(t *testing.T) *Pipeline {
	t.Helper()
	ctx := context.Background()

	units := refdata.New("units", nil)
	require.NoError(t, units.Update(ctx, []refdata.Entry{
		{CanonicalName: "кг", Aliases: []string{"килограмм"}, Embedding: []float32{1, 0, 0}},
	}))
	colors := refdata.New("colors", nil)
	require.NoError(t, colors.Update(ctx, []refdata.Entry{
		{CanonicalName: "белый", Aliases: []string{"white"}, Embedding: []float32{0, 1, 0}},
	}))

	embed := &fakeEmbedder{dim: 3}
	gen := combinedembed.New(embed, cache.NewAside(cache.NewMemory()), time.Hour)
	catalog := skusearch.NewCatalog(vectorstore.NewMemory(), skusearch.Config{RecallK: 5, MinCosine: 0})
	require.NoError(t, catalog.Upsert(ctx, skusearch.ReferenceMaterial{
		SKU: "SKU-1", NormalizedUnit: "кг", NormalizedColor: "белый",
		EmbeddingCombined: []float32{1, 1, 1},
	}))

	p := &fakeParser{out: parser.Parsed{ParsedUnit: "кг", UnitCoefficient: 25, Color: "белый"}}
	return New(p, embed, units, colors, gen, catalog, Config{
		UnitThresholds:  normalize.Thresholds{Vector: 0.85, Fuzzy: 0.75},
		ColorThresholds: normalize.Thresholds{Vector: 0.82, Fuzzy: 0.75},
	})
}

func TestPipeline_Enrich_FullHappyPath(t *testing.T) {
	pl := buildPipeline(t)
	res, err := pl.Enrich(context.Background(), "Цемент М500", "мешок 25кг")
	require.NoError(t, err)
	assert.Equal(t, "кг", res.NormalizedUnit)
	assert.Equal(t, "белый", res.NormalizedColor)
	assert.Equal(t, 25.0, res.UnitCoefficient)
	assert.NotEmpty(t, res.EmbeddingCombined)
}

func TestPipeline_Enrich_NoColorSkipsColorNormalization(t *testing.T) {
	pl := buildPipeline(t)
	pl.parser = &fakeParser{out: parser.Parsed{ParsedUnit: "кг", UnitCoefficient: 1}}
	res, err := pl.Enrich(context.Background(), "Щебень", "")
	require.NoError(t, err)
	assert.Empty(t, res.NormalizedColor)
}

func TestPipeline_Enrich_UnknownUnitFails(t *testing.T) {
	pl := buildPipeline(t)
	pl.parser = &fakeParser{out: parser.Parsed{ParsedUnit: "миллилитр", UnitCoefficient: 1}}
	_, err := pl.Enrich(context.Background(), "Растворитель", "")
	require.Error(t, err)
}

func TestApply_BuildsEnrichedMaterial(t *testing.T) {
	base := materials.Material{ID: "m1", Name: "Цемент", Unit: "кг"}
	em := Apply(base, "кг", Result{NormalizedUnit: "кг", UnitCoefficient: 25, SKU: "SKU-1", SKUSimilarity: 0.9})
	assert.Equal(t, "SKU-1", em.SKU)
	assert.Equal(t, "кг", em.NormalizedUnit)
}
