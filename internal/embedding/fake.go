package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// Fake is a deterministic, dependency-free Client for tests: it hashes byte
// trigrams into a fixed-width vector so the same text always embeds to the
// same vector and near-identical texts land close together under cosine
// similarity, without calling out to a real provider.
type Fake struct {
	Dim       int
	ShapeBug  bool // when true, returns Dim-1 floats to exercise EmbeddingShape handling
}

// NewFake constructs a Fake client with the given dimension.
func NewFake(dim int) *Fake { return &Fake{Dim: dim} }

func (f *Fake) Dimension() int { return f.Dim }

func (f *Fake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	dim := f.Dim
	if f.ShapeBug && dim > 1 {
		dim--
	}
	for i, t := range texts {
		out[i] = embedOne(t, dim)
	}
	return out, nil
}

func embedOne(s string, dim int) []float32 {
	v := make([]float32, dim)
	if dim == 0 {
		return v
	}
	b := []byte(s)
	if len(b) < 3 {
		addGram(b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			addGram(b[i:i+3], v)
		}
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum > 0 {
		inv := float32(1 / math.Sqrt(sum))
		for i := range v {
			v[i] *= inv
		}
	}
	return v
}

func addGram(gram []byte, v []float32) {
	h := fnv.New64a()
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
