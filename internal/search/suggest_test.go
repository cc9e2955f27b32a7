package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuggest_InterleavesSourcesRoundRobin(t *testing.T) {
	popular := []string{"цемент м500", "цемент быстротвердеющий"}
	names := []string{"Цемент портландский", "Цементная смесь"}
	categories := []string{"Цемент и вяжущие"}

	out := Suggest("цемент", popular, names, categories, 5)
	assert.Len(t, out, 5)
	assert.Equal(t, "popular_query", out[0].Source)
	assert.Equal(t, "material_name", out[1].Source)
	assert.Equal(t, "category", out[2].Source)
}

func TestSuggest_DeduplicatesByLowercaseForm(t *testing.T) {
	popular := []string{"цемент"}
	names := []string{"Цемент"}
	out := Suggest("цем", popular, names, nil, 5)
	assert.Len(t, out, 1)
}

func TestSuggest_CapsAtMaxLimit(t *testing.T) {
	var popular []string
	for i := 0; i < 30; i++ {
		popular = append(popular, "query")
	}
	// all identical so dedup collapses to one; use distinct strings instead.
	popular = nil
	for i := 0; i < 30; i++ {
		popular = append(popular, string(rune('a'+i))+"query")
	}
	out := Suggest("", popular, nil, nil, 100)
	assert.Len(t, out, maxSuggestLimit)
}

func TestSuggest_EmptyPrefixReturnsAllSourcesUnfiltered(t *testing.T) {
	out := Suggest("", []string{"any query"}, []string{"Any Name"}, []string{"Any Category"}, 10)
	assert.Len(t, out, 3)
}
