package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialscat/internal/cache"
	"materialscat/internal/enrichment"
	"materialscat/internal/ingestion"
	"materialscat/internal/pricelist"
	"materialscat/internal/repository"
	"materialscat/internal/search"
	"materialscat/internal/service"
	"materialscat/internal/sqlstore"
	"materialscat/internal/vectorstore"
)

type stubEnricher struct{}

func (stubEnricher) Enrich(_ context.Context, name, _ string) (enrichment.Result, error) {
	return enrichment.Result{SKU: "SKU-" + name, SKUSimilarity: 0.9}, nil
}

type stubCollection struct{ m map[string]map[string]string }

func (f *stubCollection) Upsert(_ context.Context, id string, _ []float32, metadata map[string]string) error {
	f.m[id] = metadata
	return nil
}
func (f *stubCollection) Delete(_ context.Context, id string) error { delete(f.m, id); return nil }
func (f *stubCollection) Get(_ context.Context, id string) (vectorstore.Result, bool, error) {
	meta, ok := f.m[id]
	return vectorstore.Result{ID: id, Metadata: meta}, ok, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	vs := vectorstore.NewMemory()
	ss := sqlstore.NewMemory()
	aside := cache.NewAside(cache.NewMemory())
	cursors, err := search.NewCursorCoder()
	require.NoError(t, err)

	repo := repository.New(vs, ss, aside, nil, repository.NewLogReconcileSink(zerolog.Nop()), zerolog.Nop(), repository.TTL{})
	searchSvc := search.New(ss, vs, nil, aside, cursors, 0.0, 0.3)

	store := ingestion.NewCacheStore(cache.NewMemory())
	ingestSvc := ingestion.New(store, stubEnricher{}, repo, ingestion.DefaultConfig(), zerolog.Nop())

	col := &stubCollection{m: make(map[string]map[string]string)}
	prices := pricelist.NewRegistry(func(context.Context, string) (pricelist.VectorStore, error) { return col, nil }, nil)

	suggester := search.NewSuggester(
		search.StaticSource([]string{"цемент м500"}),
		search.StaticSource([]string{"Цемент М500"}),
		nil, aside, time.Hour)

	svc := service.New(repo, searchSvc,
		service.WithIngestion(ingestSvc),
		service.WithPriceLists(prices),
		service.WithSuggester(suggester))

	health := NewHealth(
		BackendProbe{Name: "vector", Check: func(context.Context) error { return nil }},
		BackendProbe{Name: "sql", Check: nil},
	)
	return NewServer(svc, health, zerolog.Nop())
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestMaterialCRUDRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/materials", map[string]any{
		"id": "m1", "name": "Цемент М500", "unit": "кг",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodGet, "/materials/m1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Цемент М500", got["name"])

	rec = doJSON(t, srv, http.MethodPut, "/materials/m1", map[string]any{"description": "мешок 50 кг"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodDelete, "/materials/m1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/materials/m1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdvancedSearch_SQLMode(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/materials", map[string]any{
		"id": "m1", "name": "Кирпич керамический белый", "unit": "шт",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/search/advanced", map[string]any{
		"text": "кирпич", "mode": "sql",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Items)
	assert.Equal(t, "m1", resp.Items[0].ID)
}

func TestAdvancedSearch_RejectsUnknownMode(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/search/advanced", map[string]any{
		"text": "кирпич", "mode": "semantic",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdvancedSearch_VectorModeWithoutTextIsValidation(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/search/advanced", map[string]any{"mode": "vector"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestions(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/search/suggestions?q=цем&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Suggestions []search.Suggestion `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Suggestions)
	assert.True(t, strings.HasPrefix(strings.ToLower(resp.Suggestions[0].Text), "цем"))
}

func TestProcessEnhancedLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/materials/process-enhanced", map[string]any{
		"materials": []map[string]string{{"id": "it-1", "name": "Кирпич", "unit": "шт"}},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var accepted acceptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.RequestID)
	assert.Equal(t, 1, accepted.Total)

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = doJSON(t, srv, http.MethodGet, "/materials/process-enhanced/status/"+accepted.RequestID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var status jobStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, status.Total, status.Pending+status.Processing+status.Completed+status.Failed)
		if status.Completed+status.Failed == status.Total {
			break
		}
		require.True(t, time.Now().Before(deadline), "batch did not settle in time")
		time.Sleep(20 * time.Millisecond)
	}

	rec = doJSON(t, srv, http.MethodGet, "/materials/process-enhanced/results/"+accepted.RequestID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var results struct {
		Items []jobItemResponse `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results.Items, 1)
	assert.Equal(t, "SKU-Кирпич", results.Items[0].SKU)
}

func TestProcessEnhanced_RejectsEmpty(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/materials/process-enhanced", map[string]any{"materials": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessStatus_UnknownJobIs404(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/materials/process-enhanced/status/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartUpload(t *testing.T, filename, supplierID, pricelistID string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("supplier_id", supplierID))
	if pricelistID != "" {
		require.NoError(t, mw.WriteField("pricelist_id", pricelistID))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestPriceListLifecycle(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartUpload(t, "prices.csv", "sup-1", "pl-1",
		[]byte("name,unit,price\nЦемент М500,кг,12.5\n,шт,1\n"))
	req := httptest.NewRequest(http.MethodPost, "/prices/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var pl priceListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pl))
	assert.Equal(t, "pl-1", pl.PricelistID)
	assert.Len(t, pl.Rows, 1)
	assert.Len(t, pl.Rejected, 1)

	rec = doJSON(t, srv, http.MethodGet, "/prices/sup-1/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/prices/sup-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/prices/sup-1/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPriceProcess_RejectsUnknownExtension(t *testing.T) {
	srv := newTestServer(t)
	body, contentType := multipartUpload(t, "prices.txt", "sup-1", "", []byte("name,unit\na,b\n"))
	req := httptest.NewRequest(http.MethodPost, "/prices/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var basic map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &basic))
	assert.Equal(t, "degraded", basic["status"]) // sql probe is disabled in the fixture

	rec = doJSON(t, srv, http.MethodGet, "/health/databases", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dbs struct {
		SQLAvailable bool                     `json:"sql_available"`
		Backends     map[string]BackendStatus `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dbs))
	assert.False(t, dbs.SQLAvailable)
	assert.True(t, dbs.Backends["vector"].Available)
}

func TestEndpointClass(t *testing.T) {
	cases := map[string]string{
		"/search/advanced":                   "search",
		"/materials/process-enhanced":        "ingestion",
		"/materials/m1":                      "materials",
		"/prices/sup-1/latest":               "prices",
		"/health/databases":                  "health",
		"/materials/process-enhanced/status": "ingestion",
	}
	for path, want := range cases {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		assert.Equal(t, want, EndpointClass(req), path)
	}
}
