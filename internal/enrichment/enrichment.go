// Package enrichment orchestrates the four-stage enrichment pipeline
//: AI parsing, RAG normalization, combined-embedding generation, and
// SKU lookup. Every stage is a pure function of its inputs plus
// reference-collection state; the only side effects are on the caches the
// individual stages already own.
package enrichment

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"materialscat/internal/combinedembed"
	"materialscat/internal/materials"
	"materialscat/internal/normalize"
	"materialscat/internal/parser"
	"materialscat/internal/refdata"
	"materialscat/internal/skusearch"
)

// Embedder is the capability Stage A needs to embed the name/unit/color
// texts the parser extracted.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Pipeline wires the four stages together against concrete collaborators.
type Pipeline struct {
	parser     parser.Parser
	embed      Embedder
	units      *refdata.Collection
	colors     *refdata.Collection
	thresholds struct{ unit, color normalize.Thresholds }
	combined   *combinedembed.Generator
	catalog    *skusearch.Catalog
}

// Config bounds the normalization thresholds.
type Config struct {
	UnitThresholds  normalize.Thresholds
	ColorThresholds normalize.Thresholds
}

// New constructs a Pipeline from its collaborators.
func New(p parser.Parser, embed Embedder, units, colors *refdata.Collection, combined *combinedembed.Generator, catalog *skusearch.Catalog, cfg Config) *Pipeline {
	pl := &Pipeline{parser: p, embed: embed, units: units, colors: colors, combined: combined, catalog: catalog}
	pl.thresholds.unit = cfg.UnitThresholds
	pl.thresholds.color = cfg.ColorThresholds
	return pl
}

// Result is the enrichment outcome for one item ("produce (id, sku?,
// normalized_unit, unit_coefficient, normalized_color?)").
type Result struct {
	NormalizedUnit    string
	UnitCoefficient   float64
	NormalizedColor   string
	EmbeddingCombined []float32
	SKU               string
	SKUSimilarity     float64
}

// Enrich runs all four stages for one (name, description) pair. A single
// item's failure never aborts a batch; callers processing many items should
// call Enrich independently per item and record failures per item.
func (p *Pipeline) Enrich(ctx context.Context, name, description string) (Result, error) {
	parsed, err := p.parser.Parse(ctx, name, description)
	if err != nil {
		return Result{}, fmt.Errorf("enrichment: stage a (parse): %w", err)
	}

	texts := []string{name, parsed.ParsedUnit}
	colorIdx := -1
	if parsed.Color != "" {
		colorIdx = len(texts)
		texts = append(texts, parsed.Color)
	}
	vecs, err := p.embed.Embed(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("enrichment: stage a (embed): %w", err)
	}
	_, embeddingUnit := vecs[0], vecs[1]
	var embeddingColor []float32
	if colorIdx >= 0 {
		embeddingColor = vecs[colorIdx]
	}

	var normalizedUnit, normalizedColor string
	var unitErr, colorErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		normalizedUnit, unitErr = normalize.Units(gctx, p.units, parsed.ParsedUnit, embeddingUnit, p.thresholds.unit)
		return nil // collected, not propagated: a color failure must not mask a distinct unit failure
	})
	g.Go(func() error {
		normalizedColor, colorErr = normalize.Colors(gctx, p.colors, parsed.Color, embeddingColor, p.thresholds.color)
		return nil
	})
	_ = g.Wait()
	if unitErr != nil {
		return Result{}, fmt.Errorf("enrichment: stage b (normalize unit): %w", unitErr)
	}
	if colorErr != nil {
		return Result{}, fmt.Errorf("enrichment: stage b (normalize color): %w", colorErr)
	}

	embeddingCombined, err := p.combined.Generate(ctx, name, normalizedUnit, normalizedColor)
	if err != nil {
		return Result{}, fmt.Errorf("enrichment: stage c (combined embedding): %w", err)
	}

	res := Result{
		NormalizedUnit:    normalizedUnit,
		UnitCoefficient:   parsed.UnitCoefficient,
		NormalizedColor:   normalizedColor,
		EmbeddingCombined: embeddingCombined,
	}

	match, ok, err := p.catalog.Lookup(ctx, embeddingCombined, normalizedUnit, normalizedColor)
	if err != nil {
		return Result{}, fmt.Errorf("enrichment: stage d (sku lookup): %w", err)
	}
	if ok {
		res.SKU = match.SKU
		res.SKUSimilarity = match.Similarity
	}
	return res, nil
}

// Apply folds a Result into a materials.EnrichedMaterial built from base.
func Apply(base materials.Material, parsedUnit string, r Result) materials.EnrichedMaterial {
	em := materials.EnrichedMaterial{
		Material:          base,
		ParsedUnit:        parsedUnit,
		UnitCoefficient:   r.UnitCoefficient,
		NormalizedColor:   r.NormalizedColor,
		NormalizedUnit:    r.NormalizedUnit,
		EmbeddingCombined: r.EmbeddingCombined,
	}
	em.SKU = r.SKU
	return em
}
