package search

import (
	"context"
	"time"

	"materialscat/internal/apierrors"
	"materialscat/internal/sqlstore"
	"materialscat/internal/vectorstore"
)

// Diagnostics carries per-backend timing and candidate counts for
// observability and the response's Debug payload.
type Diagnostics struct {
	SQLLatency time.Duration
	VecLatency time.Duration
	SQLCount   int
	VecCount   int
	// Degraded is set when hybrid mode lost one backend and fused results
	// from the surviving one only.
	Degraded    bool
	DegradedMsg string
}

// ParallelCandidates queries the SQL and vector stores concurrently and
// waits for both to finish (or for ctx to be cancelled). Either store may be
// nil, in which case its side returns no candidates without error.
//
// In hybrid mode a single backend failing degrades the search to the
// surviving backend's results rather than failing the request: the
// failure is recorded in Diagnostics for logging, not surfaced as an error.
// A single-backend mode (vector/sql/fuzzy) has nothing to degrade to, so its
// backend failing is always an error, and hybrid mode fails outright only
// when both backends error.
func ParallelCandidates(ctx context.Context, sql sqlstore.Store, vec vectorstore.Store, plan QueryPlan, queryVec []float32) (sqlRes []sqlstore.Result, vecRes []vectorstore.Result, diag Diagnostics, err error) {
	type sqlOut struct {
		res []sqlstore.Result
		dur time.Duration
		err error
	}
	type vecOut struct {
		res []vectorstore.Result
		dur time.Duration
		err error
	}
	sqlCh := make(chan sqlOut, 1)
	vecCh := make(chan vecOut, 1)

	go func() {
		if sql == nil || plan.SQLK <= 0 {
			sqlCh <- sqlOut{}
			return
		}
		t0 := time.Now()
		res, err := sql.Search(ctx, plan.Query, plan.SQLK)
		sqlCh <- sqlOut{res: res, dur: time.Since(t0), err: err}
	}()

	go func() {
		if vec == nil || plan.VecK <= 0 || len(queryVec) == 0 {
			vecCh <- vecOut{}
			return
		}
		t0 := time.Now()
		res, err := vec.SimilaritySearch(ctx, queryVec, plan.VecK, plan.Filter)
		vecCh <- vecOut{res: res, dur: time.Since(t0), err: err}
	}()

	so := <-sqlCh
	vo := <-vecCh
	diag = Diagnostics{SQLLatency: so.dur, VecLatency: vo.dur, SQLCount: len(so.res), VecCount: len(vo.res)}

	requestedSQL := plan.SQLK > 0
	requestedVec := plan.VecK > 0

	if plan.Mode != ModeHybrid {
		if so.err != nil {
			return nil, nil, diag, so.err
		}
		if vo.err != nil {
			return nil, nil, diag, vo.err
		}
		return so.res, vo.res, diag, nil
	}

	sqlFailed := requestedSQL && so.err != nil
	vecFailed := requestedVec && vo.err != nil

	if sqlFailed && vecFailed {
		return nil, nil, diag, apierrors.New(apierrors.CodeBackendsUnavailable, "both sql and vector backends unavailable")
	}
	if sqlFailed {
		diag.Degraded = true
		diag.DegradedMsg = "sql backend unavailable, degraded to vector-only results: " + so.err.Error()
		return nil, vo.res, diag, nil
	}
	if vecFailed {
		diag.Degraded = true
		diag.DegradedMsg = "vector backend unavailable, degraded to sql-only results: " + vo.err.Error()
		return so.res, nil, diag, nil
	}
	return so.res, vo.res, diag, nil
}
