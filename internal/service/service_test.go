package service

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialscat/internal/apierrors"
	"materialscat/internal/cache"
	"materialscat/internal/enrichment"
	"materialscat/internal/ingestion"
	"materialscat/internal/materials"
	"materialscat/internal/pricelist"
	"materialscat/internal/repository"
	"materialscat/internal/search"
	"materialscat/internal/sqlstore"
	"materialscat/internal/vectorstore"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	vs := vectorstore.NewMemory()
	ss := sqlstore.NewMemory()
	aside := cache.NewAside(cache.NewMemory())
	cursors, err := search.NewCursorCoder()
	require.NoError(t, err)

	repo := repository.New(vs, ss, aside, nil, repository.NewLogReconcileSink(zerolog.Nop()), zerolog.Nop(), repository.TTL{})
	searchSvc := search.New(ss, vs, nil, aside, cursors, 0.5, 0.5)

	return New(repo, searchSvc)
}

func TestService_CreateAndGetMaterial(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.CreateMaterial(context.Background(), materials.Material{ID: "m1", Name: "cement", Unit: "kg"})
	require.NoError(t, err)
	assert.Equal(t, "m1", created.ID)

	got, err := svc.GetMaterial(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "cement", got.Name)
}

func TestService_AcceptBatch_FailsWithoutIngestionWired(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AcceptBatch(context.Background(), []ingestion.Item{{Name: "a", Unit: "kg"}})
	require.Error(t, err)
	assert.Equal(t, apierrors.CodeBackendsUnavailable, apierrors.CodeOf(err))
}

type noopEnricher struct{}

func (noopEnricher) Enrich(_ context.Context, name, _ string) (enrichment.Result, error) {
	return enrichment.Result{SKU: "SKU-" + name}, nil
}

func TestService_AcceptBatch_WiredIngestionAccepts(t *testing.T) {
	vs := vectorstore.NewMemory()
	ss := sqlstore.NewMemory()
	aside := cache.NewAside(cache.NewMemory())
	cursors, err := search.NewCursorCoder()
	require.NoError(t, err)
	repo := repository.New(vs, ss, aside, nil, repository.NewLogReconcileSink(zerolog.Nop()), zerolog.Nop(), repository.TTL{})
	searchSvc := search.New(ss, vs, nil, aside, cursors, 0.5, 0.5)

	store := ingestion.NewCacheStore(cache.NewMemory())
	ingestSvc := ingestion.New(store, noopEnricher{}, repo, ingestion.DefaultConfig(), zerolog.Nop())

	svc := New(repo, searchSvc, WithIngestion(ingestSvc))
	res, err := svc.AcceptBatch(context.Background(), []ingestion.Item{{Name: "brick", Unit: "pcs"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

type fakeCollection struct{ m map[string]map[string]string }

func (f *fakeCollection) Upsert(_ context.Context, id string, _ []float32, metadata map[string]string) error {
	f.m[id] = metadata
	return nil
}
func (f *fakeCollection) Delete(_ context.Context, id string) error { delete(f.m, id); return nil }
func (f *fakeCollection) Get(_ context.Context, id string) (vectorstore.Result, bool, error) {
	meta, ok := f.m[id]
	return vectorstore.Result{ID: id, Metadata: meta}, ok, nil
}

func TestService_PriceLists_WiredRoundTrip(t *testing.T) {
	svc := newTestService(t)
	col := &fakeCollection{m: make(map[string]map[string]string)}
	reg := pricelist.NewRegistry(func(_ context.Context, _ string) (pricelist.VectorStore, error) { return col, nil }, nil)
	svc2 := New(svc.repo, svc.search, WithPriceLists(reg))

	_, err := svc2.IngestPriceList(context.Background(), "sup-1", "pl-1", pricelist.FormatCSV,
		[]byte("name,unit\ncement,kg\n"))
	require.NoError(t, err)

	latest, ok := svc2.LatestPriceList("sup-1")
	require.True(t, ok)
	assert.Equal(t, "pl-1", latest.PricelistID)

	require.NoError(t, svc2.DeletePriceList(context.Background(), "sup-1"))
	_, ok = svc2.LatestPriceList("sup-1")
	assert.False(t, ok)
}

func TestService_Suggest(t *testing.T) {
	svc := newTestService(t)
	sg := search.NewSuggester(
		search.StaticSource([]string{"cement mix"}),
		search.StaticSource([]string{"cement bag"}),
		nil, nil, 0)
	svc2 := New(svc.repo, svc.search, WithSuggester(sg))
	out, err := svc2.Suggest(context.Background(), "cem", 5)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.True(t, strings.HasPrefix(strings.ToLower(out[0].Text), "cem"))
}

func TestService_Suggest_UnwiredReturnsEmpty(t *testing.T) {
	svc := newTestService(t)
	out, err := svc.Suggest(context.Background(), "cem", 5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestService_CreateMaterials_PartialSuccess(t *testing.T) {
	svc := newTestService(t)
	outcomes := svc.CreateMaterials(context.Background(), []materials.Material{
		{ID: "b1", Name: "brick", Unit: "pcs"},
		{ID: "b2", Name: "", Unit: "pcs"},
	})
	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes[0].Err)
	assert.Error(t, outcomes[1].Err)
}
