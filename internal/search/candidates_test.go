package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialscat/internal/apierrors"
	"materialscat/internal/sqlstore"
	"materialscat/internal/vectorstore"
)

type fakeSQL struct {
	res []sqlstore.Result
	err error
}

func (f *fakeSQL) Index(context.Context, string, string, map[string]string) error { return nil }
func (f *fakeSQL) Remove(context.Context, string) error                          { return nil }
func (f *fakeSQL) Search(context.Context, string, int) ([]sqlstore.Result, error) {
	return f.res, f.err
}
func (f *fakeSQL) GetByID(context.Context, string) (sqlstore.Result, bool, error) {
	return sqlstore.Result{}, false, nil
}

type fakeVec struct {
	res []vectorstore.Result
	err error
}

func (f *fakeVec) Upsert(context.Context, string, []float32, map[string]string) error { return nil }
func (f *fakeVec) BatchUpsert(context.Context, []vectorstore.Point) error             { return nil }
func (f *fakeVec) Delete(context.Context, string) error                               { return nil }
func (f *fakeVec) SimilaritySearch(context.Context, []float32, int, map[string]string) ([]vectorstore.Result, error) {
	return f.res, f.err
}
func (f *fakeVec) Get(context.Context, string) (vectorstore.Result, bool, error) {
	return vectorstore.Result{}, false, nil
}
func (f *fakeVec) BatchGet(context.Context, []string) (map[string]vectorstore.Result, error) {
	return map[string]vectorstore.Result{}, nil
}

func hybridPlan() QueryPlan {
	return QueryPlan{Query: "cement", Mode: ModeHybrid, K: 10, SQLK: 6, VecK: 4}
}

func TestParallelCandidates_HybridDegradesWhenVectorFails(t *testing.T) {
	sql := &fakeSQL{res: []sqlstore.Result{{ID: "m1"}}}
	vec := &fakeVec{err: errors.New("qdrant: connection refused")}

	sqlRes, vecRes, diag, err := ParallelCandidates(context.Background(), sql, vec, hybridPlan(), []float32{1, 0})
	require.NoError(t, err, "hybrid search must degrade rather than fail when only one backend is down")
	assert.Len(t, sqlRes, 1)
	assert.Nil(t, vecRes)
	assert.True(t, diag.Degraded)
}

func TestParallelCandidates_HybridDegradesWhenSQLFails(t *testing.T) {
	sql := &fakeSQL{err: errors.New("postgres: connection refused")}
	vec := &fakeVec{res: []vectorstore.Result{{ID: "m2"}}}

	sqlRes, vecRes, diag, err := ParallelCandidates(context.Background(), sql, vec, hybridPlan(), []float32{1, 0})
	require.NoError(t, err)
	assert.Nil(t, sqlRes)
	assert.Len(t, vecRes, 1)
	assert.True(t, diag.Degraded)
}

func TestParallelCandidates_HybridFailsWhenBothBackendsFail(t *testing.T) {
	sql := &fakeSQL{err: errors.New("postgres down")}
	vec := &fakeVec{err: errors.New("qdrant down")}

	_, _, _, err := ParallelCandidates(context.Background(), sql, vec, hybridPlan(), []float32{1, 0})
	require.Error(t, err)
	e, ok := apierrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeBackendsUnavailable, e.Code)
}

func TestParallelCandidates_SingleModeSurfacesBackendError(t *testing.T) {
	sql := &fakeSQL{err: errors.New("postgres down")}
	plan := QueryPlan{Query: "cement", Mode: ModeSQL, K: 10, SQLK: 10}

	_, _, _, err := ParallelCandidates(context.Background(), sql, nil, plan, nil)
	require.Error(t, err, "a single-backend mode has nothing to degrade to")
}

func TestParallelCandidates_NilBackendsReturnNoCandidates(t *testing.T) {
	plan := QueryPlan{Query: "cement", Mode: ModeHybrid, K: 10, SQLK: 6, VecK: 4}
	sqlRes, vecRes, diag, err := ParallelCandidates(context.Background(), nil, nil, plan, []float32{1, 0})
	require.NoError(t, err)
	assert.Empty(t, sqlRes)
	assert.Empty(t, vecRes)
	assert.False(t, diag.Degraded)
}
