package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildQueryPlan_Hybrid_SplitsBudget(t *testing.T) {
	plan := BuildQueryPlan("  cement   bags  ", Options{K: 10, Mode: ModeHybrid})
	assert.Equal(t, "cement bags", plan.Query)
	assert.Equal(t, 30, plan.SQLK+plan.VecK)
	assert.Greater(t, plan.VecK, plan.SQLK)
}

func TestBuildQueryPlan_VectorModeOnlyBudgetsVector(t *testing.T) {
	plan := BuildQueryPlan("cement", Options{K: 5, Mode: ModeVector})
	assert.Positive(t, plan.VecK)
	assert.Zero(t, plan.SQLK)
}

func TestBuildQueryPlan_DefaultsToHybridAndPageSize20(t *testing.T) {
	plan := BuildQueryPlan("cement", Options{})
	assert.Equal(t, ModeHybrid, plan.Mode)
	assert.Equal(t, 20, plan.K)
}

func TestSanitizeFilter_DropsEmptyKeysAndCapsEntries(t *testing.T) {
	f := map[string]string{"": "x", "unit": "кг"}
	plan := BuildQueryPlan("x", Options{Filter: f})
	assert.Equal(t, map[string]string{"unit": "кг"}, plan.Filter)
}

func TestSanitizeFilter_NilForEmptyMap(t *testing.T) {
	plan := BuildQueryPlan("x", Options{Filter: map[string]string{}})
	assert.Nil(t, plan.Filter)
}
