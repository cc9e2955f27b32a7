package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialscat/internal/sqlstore"
	"materialscat/internal/vectorstore"
)

func TestFuseRRF_MaterialInBothListsOutranksSingleList(t *testing.T) {
	sqlRes := []sqlstore.Result{{ID: "both", Score: 0.9}, {ID: "sql-only", Score: 0.9}}
	vecRes := []vectorstore.Result{{ID: "both", Score: 0.9}, {ID: "vec-only", Score: 0.9}}

	fused := FuseRRF(sqlRes, vecRes)
	require.NotEmpty(t, fused)
	assert.Equal(t, "both", fused[0].id, "a hit from both backends should fuse to the top score")
	assert.InDelta(t, vectorWeight*0.9+sqlWeight*0.9, fused[0].score, 1e-9)
}

func TestFuseRRF_SingleSideScaledDown(t *testing.T) {
	sqlRes := []sqlstore.Result{{ID: "sql-only", Score: 1.0}}
	fused := FuseRRF(sqlRes, nil)
	require.Len(t, fused, 1)
	assert.InDelta(t, singleSideScale*1.0, fused[0].score, 1e-9)
}

func TestFuseRRF_TieBreaksByNewerUpdatedAtThenID(t *testing.T) {
	sqlRes := []sqlstore.Result{
		{ID: "old", Score: 0.5, Metadata: map[string]string{"updated_at": "2024-01-01T00:00:00Z"}},
		{ID: "new", Score: 0.5, Metadata: map[string]string{"updated_at": "2025-01-01T00:00:00Z"}},
	}
	fused := FuseRRF(sqlRes, nil)
	require.Len(t, fused, 2)
	assert.Equal(t, "new", fused[0].id, "equal scores should prefer the more recently updated record")
}

func TestFuseRRF_TieBreaksByIDWhenUpdatedAtEqual(t *testing.T) {
	sqlRes := []sqlstore.Result{{ID: "b", Score: 0.5}, {ID: "a", Score: 0.5}}
	fused := FuseRRF(sqlRes, nil)
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].id)
}

func TestToItems_TruncatesToK(t *testing.T) {
	fs := []fused{{id: "1"}, {id: "2"}, {id: "3"}}
	items := ToItems(fs, 2)
	assert.Len(t, items, 2)
}

func TestToItems_ZeroKReturnsAll(t *testing.T) {
	fs := []fused{{id: "1"}, {id: "2"}}
	items := ToItems(fs, 0)
	assert.Len(t, items, 2)
}
