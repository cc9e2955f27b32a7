// Package materials defines the domain model for the construction-materials
// catalog: the canonical record shape shared by storage adapters, the
// enrichment pipeline, and the search engine.
package materials

import "time"

// Material is a single catalog entry. Embedding is present
// iff the material is indexed in the vector store; when absent the record
// is only reachable via SQL/fuzzy search.
type Material struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	UseCategory string    `json:"use_category,omitempty"`
	Unit        string    `json:"unit"`
	SKU         string    `json:"sku,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// EnrichedMaterial is a Material augmented with the output of the
// enrichment pipeline. EmbeddingCombined is derived
// deterministically from (Name, NormalizedUnit, NormalizedColor|"без_цвета")
// under a fixed concatenation format; changing any of the
// three inputs requires regeneration.
type EnrichedMaterial struct {
	Material

	ParsedUnit       string  `json:"parsed_unit"`
	UnitCoefficient  float64 `json:"unit_coefficient"`
	Color            string  `json:"color,omitempty"`
	NormalizedColor  string  `json:"normalized_color,omitempty"`
	NormalizedUnit   string  `json:"normalized_unit"`
	EmbeddingCombined []float32 `json:"embedding_combined,omitempty"`
}

// Snippet is a display-ready excerpt with the matched query terms
// highlighted, produced by the search engine for a particular query.
type Snippet struct {
	Text      string `json:"text"`
	Highlight bool   `json:"highlight"`
}

// Validate checks the minimal invariants a Material must satisfy before it
// can be persisted: a stable ID, a non-empty name (1..500 runes), and a
// non-empty unit.
func (m Material) Validate() error {
	if m.ID == "" {
		return ErrMissingID
	}
	n := len([]rune(m.Name))
	if n == 0 || n > 500 {
		return ErrInvalidName
	}
	if m.Unit == "" {
		return ErrMissingUnit
	}
	return nil
}

// sentinel validation errors, wrapped by callers into the typed API error
// taxonomy in internal/apierrors.
var (
	ErrMissingID   = missingFieldError("id")
	ErrInvalidName = missingFieldError("name (1..500 characters)")
	ErrMissingUnit = missingFieldError("unit")
)

type missingFieldError string

func (e missingFieldError) Error() string { return "materials: missing required field " + string(e) }
