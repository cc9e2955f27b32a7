package httpapi

import (
	"time"

	"materialscat/internal/apierrors"
	"materialscat/internal/ingestion"
	"materialscat/internal/pricelist"
	"materialscat/internal/search"
)

// dateRange is a half-open [from, to) filter window.
type dateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

type filtersRequest struct {
	Categories          []string   `json:"categories,omitempty"`
	Units               []string   `json:"units,omitempty"`
	SKUPattern          string     `json:"sku_pattern,omitempty"`
	CreatedRange        *dateRange `json:"created_range,omitempty"`
	UpdatedRange        *dateRange `json:"updated_range,omitempty"`
	SimilarityThreshold *float64   `json:"similarity_threshold,omitempty"`
}

type sortKeyRequest struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty"` // "asc" (default) | "desc"
}

type pageRequest struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

type optionsRequest struct {
	Highlight    bool `json:"highlight,omitempty"`
	IncludeTotal bool `json:"include_total,omitempty"`
	MaxResults   int  `json:"max_results,omitempty"`
}

// advancedQueryRequest is the POST /search/advanced body.
type advancedQueryRequest struct {
	Text    string           `json:"text,omitempty"`
	Mode    string           `json:"mode,omitempty"`
	Filters filtersRequest   `json:"filters,omitempty"`
	Sort    []sortKeyRequest `json:"sort,omitempty"`
	Page    *pageRequest     `json:"page,omitempty"`
	Cursor  string           `json:"cursor,omitempty"`
	Options optionsRequest   `json:"options,omitempty"`
}

var validSortFields = map[string]search.SortField{
	"relevance":    search.SortRelevance,
	"name":         search.SortName,
	"created_at":   search.SortCreatedAt,
	"updated_at":   search.SortUpdatedAt,
	"use_category": search.SortCategory,
	"unit":         search.SortUnit,
	"sku":          search.SortSKU,
}

func (req advancedQueryRequest) toQuery() (search.AdvancedQuery, error) {
	q := search.AdvancedQuery{
		Text:   req.Text,
		Cursor: req.Cursor,
	}
	switch req.Mode {
	case "", string(search.ModeVector), string(search.ModeSQL), string(search.ModeFuzzy), string(search.ModeHybrid):
		q.Mode = search.Mode(req.Mode)
	default:
		return search.AdvancedQuery{}, apierrors.Validation("mode", "unknown search mode "+req.Mode)
	}

	q.Filters = search.Filters{
		Categories:          req.Filters.Categories,
		Units:               req.Filters.Units,
		SKUPattern:          req.Filters.SKUPattern,
		SimilarityThreshold: req.Filters.SimilarityThreshold,
	}
	if r := req.Filters.CreatedRange; r != nil {
		if r.From != nil {
			q.Filters.CreatedFrom = *r.From
		}
		if r.To != nil {
			q.Filters.CreatedTo = *r.To
		}
	}
	if r := req.Filters.UpdatedRange; r != nil {
		if r.From != nil {
			q.Filters.UpdatedFrom = *r.From
		}
		if r.To != nil {
			q.Filters.UpdatedTo = *r.To
		}
	}
	if t := req.Filters.SimilarityThreshold; t != nil && (*t < 0 || *t > 1) {
		return search.AdvancedQuery{}, apierrors.Validation("filters.similarity_threshold", "must be in [0,1]")
	}

	for _, sk := range req.Sort {
		field, ok := validSortFields[sk.Field]
		if !ok {
			return search.AdvancedQuery{}, apierrors.Validation("sort", "unknown sort field "+sk.Field)
		}
		switch sk.Direction {
		case "", "asc", "desc":
		default:
			return search.AdvancedQuery{}, apierrors.Validation("sort", "direction must be asc or desc")
		}
		q.Sort = append(q.Sort, search.SortKey{Field: field, Desc: sk.Direction == "desc"})
	}

	if req.Page != nil {
		if req.Cursor != "" {
			return search.AdvancedQuery{}, apierrors.Validation("page", "page and cursor are mutually exclusive")
		}
		q.Page = &search.Page{Page: req.Page.Page, Size: req.Page.Size}
	}

	q.Options = search.AdvancedOptions{
		Highlight:    req.Options.Highlight,
		IncludeTotal: req.Options.IncludeTotal,
		MaxResults:   req.Options.MaxResults,
	}
	return q, nil
}

type searchItemResponse struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Snippet  string            `json:"snippet,omitempty"`
	Text     string            `json:"text,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type searchResponse struct {
	Query      string               `json:"query"`
	Items      []searchItemResponse `json:"items"`
	Total      *int                 `json:"total,omitempty"`
	NextCursor string               `json:"next_cursor,omitempty"`
	Degraded   bool                 `json:"degraded"`
}

func toSearchResponse(resp search.SearchResponse) searchResponse {
	out := searchResponse{
		Query:      resp.Query,
		Items:      make([]searchItemResponse, 0, len(resp.Items)),
		Total:      resp.Total,
		NextCursor: resp.NextCursor,
		Degraded:   resp.Degraded,
	}
	for _, it := range resp.Items {
		out.Items = append(out.Items, searchItemResponse{
			ID: it.ID, Score: it.Score, Snippet: it.Snippet, Text: it.Text, Metadata: it.Metadata,
		})
	}
	return out
}

// processRequest is the POST /materials/process-enhanced body.
type processRequest struct {
	RequestID string               `json:"request_id,omitempty"`
	Materials []processItemRequest `json:"materials"`
}

type processItemRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

func (req processRequest) toItems() []ingestion.Item {
	items := make([]ingestion.Item, len(req.Materials))
	for i, m := range req.Materials {
		items[i] = ingestion.Item{MaterialID: m.ID, Name: m.Name, Unit: m.Unit}
	}
	return items
}

type acceptResponse struct {
	RequestID           string    `json:"request_id"`
	Total               int       `json:"total"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
}

type jobStatusResponse struct {
	RequestID           string    `json:"request_id"`
	Total               int       `json:"total"`
	Pending             int       `json:"pending"`
	Processing          int       `json:"processing"`
	Completed           int       `json:"completed"`
	Failed              int       `json:"failed"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
	Ephemeral           bool      `json:"ephemeral,omitempty"`
}

func toJobStatus(j ingestion.Job) jobStatusResponse {
	return jobStatusResponse{
		RequestID:           j.RequestID,
		Total:               j.Total,
		Pending:             j.Pending,
		Processing:          j.Processing,
		Completed:           j.Completed,
		Failed:              j.Failed,
		EstimatedCompletion: j.EstimatedCompletion,
		Ephemeral:           j.Ephemeral,
	}
}

type jobItemResponse struct {
	MaterialID string  `json:"material_id"`
	Status     string  `json:"status"`
	SKU        string  `json:"sku,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
	Error      string  `json:"error,omitempty"`
	Attempts   int     `json:"attempts"`
}

func toJobItems(items []ingestion.JobItem) []jobItemResponse {
	out := make([]jobItemResponse, len(items))
	for i, it := range items {
		out[i] = jobItemResponse{
			MaterialID: it.MaterialID,
			Status:     string(it.Status),
			SKU:        it.SKU,
			Similarity: it.Similarity,
			Error:      it.Error,
			Attempts:   it.Attempts,
		}
	}
	return out
}

type priceRowResponse struct {
	MaterialRef string  `json:"material_ref,omitempty"`
	RawName     string  `json:"raw_name"`
	Unit        string  `json:"unit"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
	SKU         string  `json:"sku,omitempty"`
}

type rejectedRowResponse struct {
	LineNumber int    `json:"line_number"`
	Reason     string `json:"reason"`
}

type priceListResponse struct {
	SupplierID   string                `json:"supplier_id"`
	PricelistID  string                `json:"pricelist_id"`
	UploadedAt   time.Time             `json:"uploaded_at"`
	SourceFormat string                `json:"source_format"`
	Rows         []priceRowResponse    `json:"rows"`
	Rejected     []rejectedRowResponse `json:"rejected,omitempty"`
}

func toPriceListResponse(pl pricelist.PriceList) priceListResponse {
	out := priceListResponse{
		SupplierID:   pl.SupplierID,
		PricelistID:  pl.PricelistID,
		UploadedAt:   pl.UploadedAt,
		SourceFormat: string(pl.SourceFormat),
		Rows:         make([]priceRowResponse, 0, len(pl.Rows)),
	}
	for _, r := range pl.Rows {
		out.Rows = append(out.Rows, priceRowResponse{
			MaterialRef: r.MaterialRef,
			RawName:     r.RawName,
			Unit:        r.Unit,
			Price:       r.Price,
			Description: r.Description,
			SKU:         r.SKU,
		})
	}
	for _, r := range pl.Rejected {
		out.Rejected = append(out.Rejected, rejectedRowResponse{LineNumber: r.LineNumber, Reason: r.Reason})
	}
	return out
}
