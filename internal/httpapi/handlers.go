package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"materialscat/internal/apierrors"
	"materialscat/internal/materials"
	"materialscat/internal/pricelist"
)

func (s *Server) handleAdvancedSearch(w http.ResponseWriter, r *http.Request) {
	var req advancedQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierrors.Validation("body", "malformed JSON: "+err.Error()))
		return
	}
	query, err := req.toQuery()
	if err != nil {
		respondError(w, err)
		return
	}
	resp, err := s.service.Search(r.Context(), query)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSearchResponse(resp))
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	suggestions, err := s.service.Suggest(r.Context(), prefix, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	from := now.Add(-7 * 24 * time.Hour)
	to := now
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := parseDay(v)
		if err != nil {
			respondError(w, apierrors.Validation("from", "expected YYYY-MM-DD or RFC3339"))
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseDay(v)
		if err != nil {
			respondError(w, apierrors.Validation("to", "expected YYYY-MM-DD or RFC3339"))
			return
		}
		to = t
	}
	buckets, err := s.service.AnalyticsRange(r.Context(), from, to)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

func parseDay(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

func (s *Server) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	var m materials.Material
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		respondError(w, apierrors.Validation("body", "malformed JSON: "+err.Error()))
		return
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	created, err := s.service.CreateMaterial(r.Context(), m)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

type batchItemOutcome struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleCreateMaterialBatch(w http.ResponseWriter, r *http.Request) {
	var items []materials.Material
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		respondError(w, apierrors.Validation("body", "malformed JSON: "+err.Error()))
		return
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
	}
	outcomes := s.service.CreateMaterials(r.Context(), items)
	out := make([]batchItemOutcome, len(outcomes))
	for i, o := range outcomes {
		out[i] = batchItemOutcome{ID: o.Material.ID, OK: o.Err == nil}
		if o.Err != nil {
			out[i].Error = o.Err.Error()
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	m, err := s.service.GetMaterial(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// materialPatch is the PUT /materials/{id} body; only set fields are
// applied, so a partial body leaves the remaining fields untouched.
type materialPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	UseCategory *string `json:"use_category,omitempty"`
	Unit        *string `json:"unit,omitempty"`
	SKU         *string `json:"sku,omitempty"`
}

func (s *Server) handleUpdateMaterial(w http.ResponseWriter, r *http.Request) {
	var patch materialPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, apierrors.Validation("body", "malformed JSON: "+err.Error()))
		return
	}
	updated, err := s.service.UpdateMaterial(r.Context(), r.PathValue("id"), func(m *materials.Material) {
		if patch.Name != nil {
			m.Name = *patch.Name
		}
		if patch.Description != nil {
			m.Description = *patch.Description
		}
		if patch.UseCategory != nil {
			m.UseCategory = *patch.UseCategory
		}
		if patch.Unit != nil {
			m.Unit = *patch.Unit
		}
		if patch.SKU != nil {
			m.SKU = *patch.SKU
		}
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteMaterial(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProcessEnhanced(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierrors.Validation("body", "malformed JSON: "+err.Error()))
		return
	}
	if len(req.Materials) == 0 {
		respondError(w, apierrors.Validation("materials", "at least one material is required"))
		return
	}
	res, err := s.service.AcceptBatch(r.Context(), req.toItems())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, acceptResponse{
		RequestID:           res.RequestID,
		Total:               res.Total,
		EstimatedCompletion: res.EstimatedCompletion,
	})
}

func (s *Server) handleProcessStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("requestID")
	job, ok, err := s.service.BatchStatus(r.Context(), requestID)
	if err != nil {
		respondError(w, err)
		return
	}
	if !ok {
		respondError(w, apierrors.NotFound("job", requestID))
		return
	}
	respondJSON(w, http.StatusOK, toJobStatus(job))
}

func (s *Server) handleProcessResults(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("requestID")
	items, ok, err := s.service.BatchResults(r.Context(), requestID)
	if err != nil {
		respondError(w, err)
		return
	}
	if !ok {
		respondError(w, apierrors.NotFound("job", requestID))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"request_id": requestID, "items": toJobItems(items)})
}

func (s *Server) handlePriceProcess(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(pricelist.MaxFileBytes); err != nil {
		respondError(w, apierrors.Validation("body", "malformed multipart form: "+err.Error()))
		return
	}
	supplierID := r.FormValue("supplier_id")
	if supplierID == "" {
		respondError(w, apierrors.Validation("supplier_id", "supplier_id is required"))
		return
	}
	pricelistID := r.FormValue("pricelist_id")
	if pricelistID == "" {
		pricelistID = uuid.NewString()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, apierrors.Validation("file", "file part is required"))
		return
	}
	defer file.Close()
	if header.Size > pricelist.MaxFileBytes {
		respondError(w, apierrors.Validation("file", "file exceeds the 50 MiB limit"))
		return
	}

	var format pricelist.SourceFormat
	switch strings.ToLower(path.Ext(header.Filename)) {
	case ".csv":
		format = pricelist.FormatCSV
	case ".xlsx":
		format = pricelist.FormatXLSX
	default:
		respondError(w, apierrors.Validation("file", "unsupported file type, expected .csv or .xlsx"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, pricelist.MaxFileBytes+1))
	if err != nil {
		respondError(w, apierrors.Wrap(apierrors.CodeInternal, "read upload", err))
		return
	}
	if int64(len(data)) > pricelist.MaxFileBytes {
		respondError(w, apierrors.Validation("file", "file exceeds the 50 MiB limit"))
		return
	}

	pl, err := s.service.IngestPriceList(r.Context(), supplierID, pricelistID, format, data)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPriceListResponse(pl))
}

func (s *Server) handlePriceLatest(w http.ResponseWriter, r *http.Request) {
	supplierID := r.PathValue("supplierID")
	pl, ok := s.service.LatestPriceList(supplierID)
	if !ok {
		respondError(w, apierrors.NotFound("price list", supplierID))
		return
	}
	respondJSON(w, http.StatusOK, toPriceListResponse(pl))
}

func (s *Server) handlePriceDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeletePriceList(r.Context(), r.PathValue("supplierID")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := s.health.Report(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"status": rep.Status})
}

func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.health.Report(r.Context()))
}

func (s *Server) handleHealthDatabases(w http.ResponseWriter, r *http.Request) {
	rep := s.health.Report(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"sql_available": rep.SQLAvailable,
		"backends":      rep.Backends,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	code := apierrors.CodeOf(err)
	body := map[string]any{"code": string(code), "message": err.Error()}
	if e, ok := apierrors.As(err); ok && e.Field != "" {
		body["field"] = e.Field
	}
	respondJSON(w, apierrors.HTTPStatus(code), body)
}
