// Package skusearch resolves a SKU for an enriched material against the
// reference-materials collection (the "SKU catalog"), using the two-stage
// lookup: vector recall, then strict unit match plus the
// asymmetric color-compatibility rule.
package skusearch

import (
	"context"

	"materialscat/internal/vectorstore"
)

const (
	metaUnit  = "normalized_unit"
	metaColor = "normalized_color"
	metaSKU   = "sku"
)

// ReferenceMaterial is one SKU catalog row.
type ReferenceMaterial struct {
	SKU              string
	Name             string
	NormalizedUnit   string
	NormalizedColor  string // "" means the candidate has no color
	EmbeddingCombined []float32
}

// Catalog is the read/write surface over the reference-materials
// collection, backed by a vectorstore.Store.
type Catalog struct {
	store  vectorstore.Store
	recallK int
	minCosine float64
}

// Config bounds stage-1 recall.
type Config struct {
	RecallK   int
	MinCosine float64
}

// NewCatalog wraps a vector store collection as the SKU catalog.
func NewCatalog(store vectorstore.Store, cfg Config) *Catalog {
	if cfg.RecallK <= 0 {
		cfg.RecallK = 20
	}
	if cfg.MinCosine <= 0 {
		cfg.MinCosine = 0.70
	}
	return &Catalog{store: store, recallK: cfg.RecallK, minCosine: cfg.MinCosine}
}

// Upsert indexes or replaces one reference material.
func (c *Catalog) Upsert(ctx context.Context, rm ReferenceMaterial) error {
	md := map[string]string{metaUnit: rm.NormalizedUnit, metaSKU: rm.SKU, "name": rm.Name}
	if rm.NormalizedColor != "" {
		md[metaColor] = rm.NormalizedColor
	}
	return c.store.Upsert(ctx, rm.SKU, rm.EmbeddingCombined, md)
}

// Match is a single stage-1 recall candidate carried through filtering so
// callers (and tests) can see the rank/score that produced a result.
type Match struct {
	SKU             string
	Similarity      float64
	NormalizedUnit  string
	NormalizedColor string
}

// Lookup performs the two-stage SKU resolution. It returns ok=false, not an
// error, when no candidate survives: "no match" is a
// normal per-item outcome, not a failure.
func (c *Catalog) Lookup(ctx context.Context, embeddingCombined []float32, normalizedUnit, normalizedColor string) (Match, bool, error) {
	candidates, err := c.store.SimilaritySearch(ctx, embeddingCombined, c.recallK, nil)
	if err != nil {
		return Match{}, false, err
	}
	for _, cand := range candidates {
		if cand.Score < c.minCosine {
			continue
		}
		candUnit := cand.Metadata[metaUnit]
		if candUnit != normalizedUnit {
			continue
		}
		candColor := cand.Metadata[metaColor]
		if !colorCompatible(normalizedColor, candColor) {
			continue
		}
		return Match{
			SKU:             cand.Metadata[metaSKU],
			Similarity:      cand.Score,
			NormalizedUnit:  candUnit,
			NormalizedColor: candColor,
		}, true, nil
	}
	return Match{}, false, nil
}

// colorCompatible implements the asymmetric compatibility rule:
// a null input color accepts any candidate color; a non-null input color
// requires an exact match, and a candidate with no color is rejected when
// the input color is non-null.
func colorCompatible(inputColor, candidateColor string) bool {
	if inputColor == "" {
		return true
	}
	return inputColor == candidateColor
}
