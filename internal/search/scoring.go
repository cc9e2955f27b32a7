package search

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
)

// fieldWeight is one (field, weight) pair from the per-field scoring table
// shared by sql and fuzzy mode (name 0.4, description 0.3,
// use_category 0.2, sku 0.1").
type fieldWeight struct {
	field  string
	weight float64
}

var scoredFields = []fieldWeight{
	{"name", 0.4},
	{"description", 0.3},
	{"use_category", 0.2},
	{"sku", 0.1},
}

// sqlFieldScore implements sql-mode scoring: the max, over scored
// fields, of the field's weight times its match quality (1.0 for an exact
// match, at least 0.3 for a substring match, trigram similarity otherwise,
// dropped below 0.3 ("union with trigram similarity >= 0.3").
func sqlFieldScore(query string, meta map[string]string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}
	var best float64
	for _, fw := range scoredFields {
		v := strings.ToLower(strings.TrimSpace(meta[fw.field]))
		if v == "" {
			continue
		}
		var quality float64
		switch {
		case v == q:
			quality = 1.0
		case strings.Contains(v, q):
			quality = math.Max(0.3, trigramSimilarity(v, q))
		default:
			sim := trigramSimilarity(v, q)
			if sim < 0.3 {
				continue
			}
			quality = sim
		}
		if score := fw.weight * quality; score > best {
			best = score
		}
	}
	return best
}

// fuzzyFieldScore implements fuzzy-mode scoring: per field, the max of
// Levenshtein-derived similarity and an LCS-length ratio; the record score
// is the weighted average over the populated fields of the same field
// table. Normalizing by the populated weights keeps a record that only has
// a name (description, use_category, and sku are all optional) able to
// reach a full score on a near-exact name match.
func fuzzyFieldScore(query string, meta map[string]string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}
	var sum, weight float64
	for _, fw := range scoredFields {
		v := strings.ToLower(strings.TrimSpace(meta[fw.field]))
		if v == "" {
			continue
		}
		lev := levenshteinSimilarity(v, q)
		lcs := lcsRatio(v, q)
		sum += fw.weight * math.Max(lev, lcs)
		weight += fw.weight
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

// levenshteinSimilarity converts an edit distance into a [0,1] similarity
// normalized by the longer string's length.
func levenshteinSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// lcsRatio is the longest-common-subsequence length divided by the longer
// string's length.
func lcsRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		if len(ra) == 0 && len(rb) == 0 {
			return 1
		}
		return 0
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcsLen := prev[len(rb)]
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return float64(lcsLen) / float64(maxLen)
}

// trigramSimilarity is a Jaccard index over character 3-grams, the same
// notion of similarity pg_trgm computes server-side ("if trigram is
// available, union with trigram similarity"); computing it again here lets
// the engine score sql-mode candidates uniformly whether they came from the
// Postgres adapter or the in-memory fake, neither of which exposes a raw
// per-candidate trigram score through the sqlstore.Store interface.
func trigramSimilarity(a, b string) float64 {
	ga, gb := trigrams(a), trigrams(b)
	if len(ga) == 0 && len(gb) == 0 {
		return 1
	}
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}
	inter := 0
	for g := range ga {
		if gb[g] {
			inter++
		}
	}
	union := len(ga) + len(gb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func trigrams(s string) map[string]bool {
	padded := "  " + s + "  "
	r := []rune(padded)
	out := make(map[string]bool, len(r))
	for i := 0; i+3 <= len(r); i++ {
		out[string(r[i:i+3])] = true
	}
	return out
}

// normalizeCosine maps a cosine-similarity score in [-1,1] (the convention
// vectorstore.Result.Score uses) onto [0,1] for vector-mode scoring.
func normalizeCosine(score float64) float64 {
	v := (score + 1) / 2
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
