package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MarkOpen and MarkClose bracket a highlighted query term in Highlight's
// output.
const (
	MarkOpen  = "‹mark›"
	MarkClose = "‹/mark›"
)

// minTermLength is the shortest query term eligible for highlighting;
// shorter terms match too much of the text to be a useful visual cue.
const minTermLength = 2

// Highlight wraps every case- and diacritic-folded occurrence of any term
// in terms within text with MarkOpen/MarkClose, merging overlapping
// matches. It is never applied to a material's sku field.
func Highlight(text string, terms []string) string {
	folded, err := foldFold(text)
	if err != nil {
		folded = strings.ToLower(text)
	}
	var spans [][2]int
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if len([]rune(term)) < minTermLength {
			continue
		}
		foldedTerm, err := foldFold(term)
		if err != nil {
			foldedTerm = strings.ToLower(term)
		}
		spans = append(spans, findAll(folded, foldedTerm)...)
	}
	if len(spans) == 0 {
		return text
	}
	spans = mergeSpans(spans)
	return applySpans(text, spans)
}

// foldFold case-folds and strips diacritics so "Цемент" and "цемент" (and
// accented Latin variants) compare equal to a plain-ASCII or unaccented
// query term.
func foldFold(s string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	return out, err
}

func findAll(haystack, needle string) [][2]int {
	if needle == "" {
		return nil
	}
	var spans [][2]int
	start := 0
	for {
		idx := strings.Index(haystack[start:], needle)
		if idx < 0 {
			break
		}
		from := start + idx
		to := from + len(needle)
		spans = append(spans, [2]int{from, to})
		start = from + 1
	}
	return spans
}

func mergeSpans(spans [][2]int) [][2]int {
	if len(spans) == 0 {
		return nil
	}
	sortSpans(spans)
	out := [][2]int{spans[0]}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s[0] <= last[1] {
			if s[1] > last[1] {
				last[1] = s[1]
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

func sortSpans(spans [][2]int) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j][0] < spans[j-1][0]; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
}

// applySpans wraps byte ranges of the *original* text in markers. It relies
// on foldFold being byte-length-preserving for the alphabets this catalog
// targets (Cyrillic and unaccented Latin); callers needing exact
// byte-for-byte span fidelity across scripts that diacritic-folding can
// shrink should re-fold with position tracking instead.
func applySpans(text string, spans [][2]int) string {
	var b strings.Builder
	last := 0
	for _, s := range spans {
		from, to := s[0], s[1]
		if from < last || from > len(text) || to > len(text) {
			continue
		}
		b.WriteString(text[last:from])
		b.WriteString(MarkOpen)
		b.WriteString(text[from:to])
		b.WriteString(MarkClose)
		last = to
	}
	b.WriteString(text[last:])
	return b.String()
}
