package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialscat/internal/sqlstore"
)

func TestFuzzyFieldScore_NameOnlyRecordCanScoreHigh(t *testing.T) {
	// One edit over 11 runes; a record carrying nothing but a name must not
	// be capped at the name field's weight.
	score := fuzzyFieldScore("цимент м500", map[string]string{"name": "Цемент М500"})
	assert.GreaterOrEqual(t, score, 0.8)
}

func TestFuzzyFieldScore_WeightedAverageOverPopulatedFields(t *testing.T) {
	// name matches exactly (1.0 at weight 0.4), description is unrelated
	// (~0 at weight 0.3); the average over 0.7 of populated weight lands
	// well above the name-weight cap and well below a full match.
	score := fuzzyFieldScore("цемент", map[string]string{
		"name":        "цемент",
		"description": "xxxxxxxxxxxxxxxxxxxx",
	})
	assert.Greater(t, score, 0.5)
	assert.Less(t, score, 0.8)
}

func TestFuzzyFieldScore_EmptyInputs(t *testing.T) {
	assert.Zero(t, fuzzyFieldScore("", map[string]string{"name": "цемент"}))
	assert.Zero(t, fuzzyFieldScore("цемент", nil))
	assert.Zero(t, fuzzyFieldScore("цемент", map[string]string{"name": ""}))
}

func TestSQLFieldScore_ExactMatchUsesFieldWeight(t *testing.T) {
	score := sqlFieldScore("цемент", map[string]string{"name": "Цемент"})
	assert.InDelta(t, 0.4, score, 1e-9)
}

func TestSQLFieldScore_BestFieldWins(t *testing.T) {
	// An exact sku match (0.1) loses to an exact name match (0.4) on
	// another record; within one record the best field is taken.
	score := sqlFieldScore("cem-1", map[string]string{"name": "Portland Cement", "sku": "CEM-1"})
	assert.InDelta(t, 0.1, score, 1e-9)
}

func TestLevenshteinSimilarity_SingleEdit(t *testing.T) {
	sim := levenshteinSimilarity("цемент м500", "цимент м500")
	assert.InDelta(t, 1-1.0/11, sim, 1e-9)
}

func TestLCSRatio(t *testing.T) {
	assert.InDelta(t, 1.0, lcsRatio("abc", "abc"), 1e-9)
	assert.InDelta(t, 0.5, lcsRatio("ab", "axbx"), 1e-9)
	assert.Zero(t, lcsRatio("abc", "xyz"))
}

func TestSearch_FuzzyModeRecallsMisspelledQuery(t *testing.T) {
	sql := &fakeSQL{res: []sqlstore.Result{
		{ID: "m1", Metadata: map[string]string{"name": "Цемент М500"}},
		{ID: "m2", Metadata: map[string]string{"name": "Кирпич керамический"}},
	}}
	svc := newService(t, sql, nil, nil)

	resp, err := svc.Search(context.Background(), AdvancedQuery{Text: "цимент м500", Mode: ModeFuzzy})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1, "the unrelated record scores below the fuzzy threshold and is dropped")
	assert.Equal(t, "m1", resp.Items[0].ID)
	assert.GreaterOrEqual(t, resp.Items[0].Score, 0.8)
}

func TestSearch_FuzzyModeThresholdDropsWeakMatches(t *testing.T) {
	sql := &fakeSQL{res: []sqlstore.Result{
		{ID: "m1", Metadata: map[string]string{"name": "Арматура 12мм"}},
	}}
	svc := newService(t, sql, nil, nil)

	resp, err := svc.Search(context.Background(), AdvancedQuery{Text: "цимент м500", Mode: ModeFuzzy})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}
