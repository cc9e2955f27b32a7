package search

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"materialscat/internal/analytics"
	"materialscat/internal/apierrors"
	"materialscat/internal/cache"
	"materialscat/internal/sqlstore"
	"materialscat/internal/vectorstore"
)

// Clock abstracts time so tests control "now" instead of racing time.Now.
type Clock interface{ Now() time.Time }

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Embedder is the capability the engine needs to turn query text into a
// vector for vector/hybrid mode.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithLogger overrides the default no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log.With().Str("component", "search.Service").Logger() }
}

// WithClock overrides SystemClock, for deterministic tests.
func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

// WithAnalytics attaches a Recorder; every Search call fires an analytics
// event regardless of outcome visibility to the caller ("failures to
// record must never affect the response").
func WithAnalytics(rec *analytics.Recorder) Option {
	return func(s *Service) { s.analytics = rec }
}

// WithCacheTTL overrides the default 5-minute search result cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// Service answers AdvancedQuery calls, composing the SQL/vector
// adapters, the embedding client, and a cache-aside layer for results.
type Service struct {
	sql    sqlstore.Store
	vector vectorstore.Store
	embed  Embedder

	aside    *cache.Aside
	cacheTTL time.Duration
	cursors  *CursorCoder

	vectorThreshold float64
	fuzzyThreshold  float64

	analytics *analytics.Recorder
	log       zerolog.Logger
	clock     Clock
}

// New constructs a Service. sql and vector may individually be nil (one
// backend disabled); embed may be nil if neither vector nor hybrid mode
// will ever be requested.
func New(sqlStore sqlstore.Store, vectorStore vectorstore.Store, embed Embedder, aside *cache.Aside, cursors *CursorCoder, vectorThreshold, fuzzyThreshold float64, opts ...Option) *Service {
	s := &Service{
		sql: sqlStore, vector: vectorStore, embed: embed,
		aside: aside, cacheTTL: 5 * time.Minute, cursors: cursors,
		vectorThreshold: vectorThreshold, fuzzyThreshold: fuzzyThreshold,
		log: zerolog.Nop(), clock: SystemClock{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Search answers one AdvancedQuery. It validates the request shape,
// serves from the result cache when possible, otherwise fans out to the
// configured backend(s) per mode, fuses, filters, sorts, paginates, and
// highlights, recording an analytics event for the call regardless of
// outcome.
func (s *Service) Search(ctx context.Context, q AdvancedQuery) (SearchResponse, error) {
	start := s.clock.Now()
	mode := q.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	text := normalizeQuery(q.Text)

	if text == "" && mode == ModeVector {
		return SearchResponse{}, apierrors.Validation("text", "text is required for mode=vector")
	}
	if q.Page != nil && q.Cursor != "" {
		return SearchResponse{}, apierrors.Validation("page", "page and cursor pagination are mutually exclusive")
	}

	var cur Cursor
	hasCursor := q.Cursor != ""
	if hasCursor {
		c, err := s.cursors.Decode(q.Cursor)
		if err != nil {
			return SearchResponse{}, err
		}
		cur = c
	}

	key := s.cacheKey(mode, text, q)
	if s.aside != nil {
		raw, err := s.aside.GetOrLoad(ctx, key, s.cacheTTL, func(ctx context.Context) ([]byte, error) {
			resp, err := s.execute(ctx, mode, text, q, cur, hasCursor)
			if err != nil {
				return nil, err
			}
			return json.Marshal(resp)
		})
		if err == nil {
			var resp SearchResponse
			if jerr := json.Unmarshal(raw, &resp); jerr == nil {
				s.recordAnalytics(mode, text, q.Filters, time.Since(start), len(resp.Items))
				return resp, nil
			}
		} else if _, ok := apierrors.As(err); ok {
			// a typed failure (validation, embedding unavailable, ...) must
			// reach the caller even though it came back through the cache
			// loader, and must never be cached.
			s.recordAnalytics(mode, text, q.Filters, time.Since(start), 0)
			return SearchResponse{}, err
		}
	}

	resp, err := s.execute(ctx, mode, text, q, cur, hasCursor)
	if err != nil {
		s.recordAnalytics(mode, text, q.Filters, time.Since(start), 0)
		return SearchResponse{}, err
	}
	s.recordAnalytics(mode, text, q.Filters, time.Since(start), len(resp.Items))
	return resp, nil
}

func (s *Service) recordAnalytics(mode Mode, text string, f Filters, dur time.Duration, n int) {
	if s.analytics == nil {
		return
	}
	s.analytics.Record(string(mode), text, filtersToMap(f), dur, n, s.clock.Now())
}

func filtersToMap(f Filters) map[string]string {
	m := map[string]string{}
	if len(f.Categories) > 0 {
		m["categories"] = strings.Join(f.Categories, ",")
	}
	if len(f.Units) > 0 {
		m["units"] = strings.Join(f.Units, ",")
	}
	if f.SKUPattern != "" {
		m["sku_pattern"] = f.SKUPattern
	}
	if f.SimilarityThreshold != nil {
		m["similarity_threshold"] = strconv.FormatFloat(*f.SimilarityThreshold, 'f', -1, 64)
	}
	return m
}

func (s *Service) cacheKey(mode Mode, text string, q AdvancedQuery) string {
	h := sha1.New()
	h.Write([]byte(string(mode)))
	h.Write([]byte(text))
	fm := filtersToMap(q.Filters)
	keys := make([]string, 0, len(fm))
	for k := range fm {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte("="))
		h.Write([]byte(fm[k]))
	}
	for _, sk := range q.Sort {
		h.Write([]byte(sk.Field))
		if sk.Desc {
			h.Write([]byte("-"))
		}
	}
	if q.Page != nil {
		h.Write([]byte("page:"))
		h.Write([]byte(strconv.Itoa(q.Page.Page)))
		h.Write([]byte(":"))
		h.Write([]byte(strconv.Itoa(q.Page.Size)))
	}
	h.Write([]byte("cursor:"))
	h.Write([]byte(q.Cursor))
	return "search:" + hex.EncodeToString(h.Sum(nil))
}

// execute runs the actual mode-specific retrieval/fuse/filter/sort/paginate
// pipeline, bypassing the result cache (the caller is either populating it
// or has already decided not to use it).
func (s *Service) execute(ctx context.Context, mode Mode, text string, q AdvancedQuery, cur Cursor, hasCursor bool) (SearchResponse, error) {
	limit, candidateK, sizeExplicitlyZero := s.resolveLimits(q)

	var items []Item
	var diag Diagnostics
	var err error

	switch mode {
	case ModeVector:
		items, err = s.searchVector(ctx, text, candidateK, q.Filters)
	case ModeSQL:
		items, err = s.searchSQL(ctx, text, candidateK)
	case ModeFuzzy:
		items, err = s.searchFuzzy(ctx, text, candidateK)
	default:
		items, diag, err = s.searchHybrid(ctx, text, candidateK, q.Filters)
	}
	if err != nil {
		return SearchResponse{}, err
	}

	threshold := s.resolveThreshold(mode, q.Filters.SimilarityThreshold)
	filters := q.Filters
	filters.SimilarityThreshold = threshold
	items, err = ApplyFilters(items, filters)
	if err != nil {
		return SearchResponse{}, err
	}

	items = ApplySort(items, q.Sort)

	var total *int
	if q.Options.IncludeTotal {
		n := len(items)
		total = &n
	}

	var pageItems []Item
	if !sizeExplicitlyZero {
		pageItems, _ = paginate(items, q.Page, cur, hasCursor, limit)
	}

	var nextCursor string
	if len(pageItems) > 0 && len(pageItems) == limit && moreAfter(items, pageItems[len(pageItems)-1].ID) {
		last := pageItems[len(pageItems)-1]
		nc := Cursor{LastID: last.ID, SortValues: sortValuesOf(last, q.Sort)}
		if tok, err := s.cursors.Encode(nc); err == nil {
			nextCursor = tok
		}
	}

	if q.Options.Highlight {
		pageItems = highlightItems(pageItems, text)
	}

	return SearchResponse{
		Query:       text,
		Items:       pageItems,
		Total:       total,
		NextCursor:  nextCursor,
		Degraded:    diag.Degraded,
		Diagnostics: diag,
	}, nil
}

func moreAfter(items []Item, lastID string) bool {
	for i, it := range items {
		if it.ID == lastID {
			return i+1 < len(items)
		}
	}
	return false
}

func sortValuesOf(it Item, spec []SortKey) []string {
	if len(spec) == 0 {
		spec = []SortKey{{Field: SortRelevance, Desc: true}}
	}
	out := make([]string, len(spec))
	for i, k := range spec {
		switch k.Field {
		case SortRelevance:
			out[i] = strconv.FormatFloat(it.Score, 'f', -1, 64)
		default:
			out[i] = it.Metadata[string(k.Field)]
		}
	}
	return out
}

func (s *Service) resolveLimits(q AdvancedQuery) (limit, candidateK int, explicitZero bool) {
	limit = 20
	if q.Page != nil {
		limit = q.Page.Size
		if limit == 0 {
			explicitZero = true
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}
	} else if q.Options.MaxResults > 0 {
		limit = clampMaxResults(q.Options.MaxResults)
	}
	candidateK = limit * 3
	if candidateK <= 0 {
		candidateK = 60 // still recall candidates so include_total can report a count
	}
	if candidateK > maxResultsCap*3 {
		candidateK = maxResultsCap * 3
	}
	if candidateK > 300 {
		candidateK = 300
	}
	return limit, candidateK, explicitZero
}

func (s *Service) resolveThreshold(mode Mode, explicit *float64) *float64 {
	if explicit != nil {
		return explicit
	}
	switch mode {
	case ModeVector:
		d := s.vectorThreshold
		return &d
	case ModeFuzzy:
		d := s.fuzzyThreshold
		return &d
	default:
		return nil
	}
}

// pushdownFilter narrows Filters to the single-value equality constraints
// the vector store's payload filter can express directly; richer
// constraints (multi-value, sku_pattern, date ranges) are still applied
// post-retrieval by ApplyFilters.
func pushdownFilter(f Filters) map[string]string {
	out := map[string]string{}
	if len(f.Categories) == 1 {
		out["use_category"] = f.Categories[0]
	}
	if len(f.Units) == 1 {
		out["unit"] = f.Units[0]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Service) searchVector(ctx context.Context, text string, k int, f Filters) ([]Item, error) {
	if text == "" {
		return nil, nil
	}
	if s.embed == nil || s.vector == nil {
		return nil, apierrors.New(apierrors.CodeBackendsUnavailable, "vector search is not configured")
	}
	vecs, err := s.embed.Embed(ctx, []string{text})
	if err != nil {
		return nil, err // already apierrors.CodeEmbeddingUnavailable/Shape; never fall back for vector mode
	}
	res, err := s.vector.SimilaritySearch(ctx, vecs[0], k, pushdownFilter(f))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeBackendsUnavailable, "vector store search failed", err)
	}
	items := make([]Item, len(res))
	for i, r := range res {
		items[i] = Item{ID: r.ID, Score: normalizeCosine(r.Score), Metadata: r.Metadata}
	}
	return items, nil
}

func (s *Service) searchSQL(ctx context.Context, text string, k int) ([]Item, error) {
	if s.sql == nil {
		return nil, apierrors.New(apierrors.CodeBackendsUnavailable, "sql search is not configured")
	}
	res, err := s.sql.Search(ctx, text, k)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeBackendsUnavailable, "sql store search failed", err)
	}
	items := make([]Item, len(res))
	for i, r := range res {
		items[i] = Item{ID: r.ID, Score: sqlFieldScore(text, r.Metadata), Snippet: r.Snippet, Text: r.Text, Metadata: r.Metadata}
	}
	return items, nil
}

func (s *Service) searchFuzzy(ctx context.Context, text string, k int) ([]Item, error) {
	if s.sql == nil {
		return nil, apierrors.New(apierrors.CodeBackendsUnavailable, "fuzzy search requires a lexical recall pool and none is configured")
	}
	res, err := s.sql.Search(ctx, text, k)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeBackendsUnavailable, "sql store search failed", err)
	}
	items := make([]Item, len(res))
	for i, r := range res {
		items[i] = Item{ID: r.ID, Score: fuzzyFieldScore(text, r.Metadata), Snippet: r.Snippet, Text: r.Text, Metadata: r.Metadata}
	}
	return items, nil
}

func (s *Service) searchHybrid(ctx context.Context, text string, k int, f Filters) ([]Item, Diagnostics, error) {
	plan := QueryPlan{Query: text, Mode: ModeHybrid, K: k, Filter: pushdownFilter(f)}
	plan.VecK = int(float64(k) * vectorShare)
	plan.SQLK = k - plan.VecK

	var queryVec []float32
	embeddingFailed := false
	if text != "" && s.embed != nil {
		vecs, err := s.embed.Embed(ctx, []string{text})
		if err != nil {
			embeddingFailed = true
			s.log.Warn().Err(err).Msg("hybrid search: embedding failed, degrading to sql-only")
		} else {
			queryVec = vecs[0]
		}
	} else {
		embeddingFailed = s.embed == nil
	}
	if embeddingFailed {
		plan.VecK = 0
	}

	sqlRes, vecRes, diag, err := ParallelCandidates(ctx, s.sql, s.vector, plan, queryVec)
	if err != nil {
		return nil, diag, err
	}
	if embeddingFailed && !diag.Degraded {
		diag.Degraded = true
		diag.DegradedMsg = "embedding provider unavailable, degraded to sql-only results"
	}

	for i := range sqlRes {
		sqlRes[i].Score = sqlFieldScore(text, sqlRes[i].Metadata)
	}
	for i := range vecRes {
		vecRes[i].Score = normalizeCosine(vecRes[i].Score)
	}
	fusedList := FuseRRF(sqlRes, vecRes)
	return ToItems(fusedList, 0), diag, nil
}

func highlightItems(items []Item, text string) []Item {
	terms := strings.Fields(text)
	if len(terms) == 0 {
		return items
	}
	out := make([]Item, len(items))
	for i, it := range items {
		md := make(map[string]string, len(it.Metadata))
		for k, v := range it.Metadata {
			md[k] = v
		}
		for _, field := range []string{"name", "description", "use_category"} {
			if v, ok := md[field]; ok {
				md[field] = Highlight(v, terms)
			}
		}
		out[i] = it
		out[i].Metadata = md
	}
	return out
}
