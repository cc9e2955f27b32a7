package search

import "sort"

// SortField is one of the supported ordering keys from an AdvancedQuery's
// sort[] list.
type SortField string

const (
	SortRelevance SortField = "relevance"
	SortName      SortField = "name"
	SortCreatedAt SortField = "created_at"
	SortUpdatedAt SortField = "updated_at"
	SortCategory  SortField = "use_category"
	SortUnit      SortField = "unit"
	SortSKU       SortField = "sku"
)

// SortKey is one entry in an ordered sort[] specification.
type SortKey struct {
	Field SortField
	Desc  bool
}

// ApplySort orders items by spec, applied after fusion so relevance sorting
// uses the already-computed fused score; the final key always breaks ties by
// id so repeated calls with identical inputs return a stable order.
func ApplySort(items []Item, spec []SortKey) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	if len(spec) == 0 {
		spec = []SortKey{{Field: SortRelevance, Desc: true}}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, key := range spec {
			cmp := compareField(out[i], out[j], key.Field)
			if cmp == 0 {
				continue
			}
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func compareField(a, b Item, field SortField) int {
	switch field {
	case SortRelevance:
		return compareFloat(a.Score, b.Score)
	case SortName:
		return compareString(a.Metadata["name"], b.Metadata["name"])
	case SortCreatedAt:
		return compareString(a.Metadata["created_at"], b.Metadata["created_at"])
	case SortUpdatedAt:
		return compareString(a.Metadata["updated_at"], b.Metadata["updated_at"])
	case SortCategory:
		return compareString(a.Metadata["use_category"], b.Metadata["use_category"])
	case SortUnit:
		return compareString(a.Metadata["unit"], b.Metadata["unit"])
	case SortSKU:
		return compareString(a.Metadata["sku"], b.Metadata["sku"])
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
