// Package combinedembed implements Stage C of the enrichment pipeline
//: building the single "combined" embedding a material is matched
// against in the SKU catalog, from its name plus its two normalized
// attributes, and caching the result by content hash so two materials that
// normalize to the same (name, unit, color) never re-embed.
package combinedembed

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"materialscat/internal/cache"
	"materialscat/internal/normalize"
)

// Embedder is the minimal capability this stage needs from the embedding
// client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces and caches combined embeddings.
type Generator struct {
	embed Embedder
	aside *cache.Aside
	ttl   time.Duration
}

// New constructs a Generator. ttl is the combined-embedding cache
// lifetime.
func New(embed Embedder, aside *cache.Aside, ttl time.Duration) *Generator {
	return &Generator{embed: embed, aside: aside, ttl: ttl}
}

// Text builds the fixed concatenation the combined embedding is generated
// from: "{name} | unit:{normalized_unit} | color:{normalized_color|без_цвета}".
// The format is part of the data contract — changing it invalidates every
// cached combined embedding and every catalog entry indexed under the old
// one.
func Text(name, normalizedUnit, normalizedColor string) string {
	color := normalizedColor
	if color == "" {
		color = normalize.NoColor
	}
	return fmt.Sprintf("%s | unit:%s | color:%s", name, normalizedUnit, color)
}

// Generate returns the combined embedding for (name, normalizedUnit,
// normalizedColor), serving from cache when the content hash matches a
// prior call.
func (g *Generator) Generate(ctx context.Context, name, normalizedUnit, normalizedColor string) ([]float32, error) {
	text := Text(name, normalizedUnit, normalizedColor)
	key := cacheKey(text)

	raw, err := g.aside.GetOrLoad(ctx, key, g.ttl, func(ctx context.Context) ([]byte, error) {
		vecs, err := g.embed.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		return json.Marshal(vecs[0])
	})
	if err != nil {
		return nil, err
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("combinedembed: decode cached vector: %w", err)
	}
	return vec, nil
}

func cacheKey(text string) string {
	sum := sha1.Sum([]byte(text))
	return "combined:" + hex.EncodeToString(sum[:])
}
