// Package normalize implements the RAG normalizer: mapping a
// free-form unit or color string to a canonical reference-collection entry
// via three-tier lookup (exact alias, vector nearest, Levenshtein fuzzy).
package normalize

import (
	"context"

	"materialscat/internal/apierrors"
	"materialscat/internal/refdata"
)

// Thresholds holds the per-collection cosine/fuzzy cutoffs from the
// configuration table.
type Thresholds struct {
	Vector float64
	Fuzzy  float64
}

// NoColor is substituted for normalized_color whenever the input color is
// absent, keeping the combined-embedding format total.
const NoColor = "без_цвета"

// Units performs the three-tier normalize_unit lookup.
func Units(ctx context.Context, units *refdata.Collection, parsedUnit string, embeddingUnit []float32, th Thresholds) (string, error) {
	name, err := lookup(units, parsedUnit, embeddingUnit, th)
	if err != nil {
		return "", apierrors.New(apierrors.CodeUnitUnknown, "could not normalize unit "+parsedUnit)
	}
	return name, nil
}

// Colors performs the three-tier normalize_color lookup. A nil/empty color
// input returns "" (the caller substitutes NoColor when building the
// combined-embedding text) without ever calling the reference store.
func Colors(ctx context.Context, colors *refdata.Collection, color string, embeddingColor []float32, th Thresholds) (string, error) {
	if color == "" {
		return "", nil
	}
	name, err := lookup(colors, color, embeddingColor, th)
	if err != nil {
		return "", apierrors.New(apierrors.CodeColorUnknown, "could not normalize color "+color)
	}
	return name, nil
}

func lookup(col *refdata.Collection, raw string, vec []float32, th Thresholds) (string, error) {
	if e, ok := col.LookupExact(raw); ok {
		return e.CanonicalName, nil
	}
	if len(vec) > 0 {
		if nearest := col.LookupNearest(vec, 1); len(nearest) > 0 && nearest[0].Score >= th.Vector {
			return nearest[0].Entry.CanonicalName, nil
		}
	}
	if fuzzy := col.LookupFuzzy(raw, 1); len(fuzzy) > 0 && fuzzy[0].Score >= th.Fuzzy {
		return fuzzy[0].Entry.CanonicalName, nil
	}
	return "", errNoMatch
}

var errNoMatch = apierrors.New(apierrors.CodeNotFound, "no reference entry matched")
