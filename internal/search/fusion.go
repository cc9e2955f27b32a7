package search

import (
	"sort"

	"materialscat/internal/sqlstore"
	"materialscat/internal/vectorstore"
)

// vectorWeight and sqlWeight are the fixed fusion weights for hybrid mode
//: a material present in both lists scores
// vectorWeight*vecScore + sqlWeight*sqlScore.
const (
	vectorWeight = 0.6
	sqlWeight    = 0.4
)

// singleSideScale is applied to a candidate present on only one side of a
// hybrid query, so a
// single-source match never outranks a genuinely cross-confirmed one at the
// same raw score.
const singleSideScale = 0.9

type fused struct {
	id       string
	score    float64
	snippet  string
	text     string
	metadata map[string]string
	explain  map[string]any
}

type fusionSide struct {
	sqlScore, vecScore float64
	hasSQL, hasVec     bool
	snippet, text      string
	metadata           map[string]string
}

// FuseRRF combines SQL and vector candidate lists into one ranked set using
// the fixed hybrid-mode weighting. Callers pass each
// side's score already normalized to [0,1] (vector via normalizeCosine, sql
// via sqlFieldScore); a material present in both lists scores
// vectorWeight·vecScore + sqlWeight·sqlScore, one present on only one side
// is scaled by singleSideScale. Ties are broken first by newer updated_at,
// then by id, so repeated calls over identical inputs return a
// deterministic order regardless of map iteration.
func FuseRRF(sqlRes []sqlstore.Result, vecRes []vectorstore.Result) []fused {
	byID := make(map[string]*fusionSide, len(sqlRes)+len(vecRes))
	order := make([]string, 0, len(sqlRes)+len(vecRes))

	get := func(id string) *fusionSide {
		if s, ok := byID[id]; ok {
			return s
		}
		s := &fusionSide{}
		byID[id] = s
		order = append(order, id)
		return s
	}

	for _, r := range sqlRes {
		s := get(r.ID)
		s.hasSQL = true
		s.sqlScore = r.Score
		s.snippet = r.Snippet
		s.text = r.Text
		s.metadata = mergeMeta(s.metadata, r.Metadata)
	}
	for _, r := range vecRes {
		s := get(r.ID)
		s.hasVec = true
		s.vecScore = r.Score
		s.metadata = mergeMeta(s.metadata, r.Metadata)
	}

	out := make([]fused, 0, len(order))
	for _, id := range order {
		s := byID[id]
		f := fused{id: id, snippet: s.snippet, text: s.text, metadata: s.metadata, explain: map[string]any{}}
		switch {
		case s.hasSQL && s.hasVec:
			f.score = vectorWeight*s.vecScore + sqlWeight*s.sqlScore
			f.explain["sql_score"] = s.sqlScore
			f.explain["vector_score"] = s.vecScore
		case s.hasVec:
			f.score = singleSideScale * s.vecScore
			f.explain["vector_score"] = s.vecScore
		case s.hasSQL:
			f.score = singleSideScale * s.sqlScore
			f.explain["sql_score"] = s.sqlScore
		}
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		ui, uj := out[i].metadata["updated_at"], out[j].metadata["updated_at"]
		if ui != uj {
			return ui > uj // newer (lexicographically greater RFC3339) wins
		}
		return out[i].id < out[j].id
	})
	return out
}

func mergeMeta(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		if _, exists := dst[k]; !exists {
			dst[k] = v
		}
	}
	return dst
}

// ToItems truncates a fused candidate list to k and converts it to the
// public Item shape.
func ToItems(fs []fused, k int) []Item {
	if k <= 0 {
		k = len(fs)
	}
	if len(fs) > k {
		fs = fs[:k]
	}
	items := make([]Item, len(fs))
	for i, f := range fs {
		items[i] = Item{ID: f.id, Score: f.score, Snippet: f.snippet, Text: f.text, Metadata: f.metadata, Explanation: f.explain}
	}
	return items
}
