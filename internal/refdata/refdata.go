// Package refdata serves the two reference collections the enrichment
// pipeline normalizes against: colors and units. Both are small,
// read-mostly sets seeded at startup and read on every enrichment request,
// so the hot path never takes a lock: readers dereference an atomic
// pointer to an immutable snapshot, and a writer builds a new snapshot and
// swaps it in one atomic store. Because the snapshot is immutable, a reader
// that loaded the old pointer a moment before a swap keeps working against
// a perfectly valid (if slightly stale) view — there is no barrier to wait
// for, which is the point of the copy-on-write shape the design notes call
// for in place of a traditional readers-writer lock.
package refdata

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/agnivade/levenshtein"
)

// Entry is one canonical reference-collection row (a ReferenceColor or
// ReferenceUnit in the data model).
type Entry struct {
	CanonicalName string
	Aliases       []string
	Embedding     []float32
}

// Scored pairs an Entry with a similarity score from a nearest/fuzzy lookup.
type Scored struct {
	Entry Entry
	Score float64
}

// Embedder is the minimal capability refdata needs to regenerate embeddings
// for entries seeded or updated without one.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type snapshot struct {
	entries   []Entry
	byAlias   map[string]int // normalized alias -> index into entries
	byCanon   map[string]int
}

// Collection is a hot-reloadable reference set (colors or units).
type Collection struct {
	name string
	ptr  atomic.Pointer[snapshot]
	emb  Embedder

	// writeMu serializes writers; it is never held by readers.
	writeMu sync.Mutex
}

// New constructs an empty Collection. Call Seed before serving traffic.
func New(name string, emb Embedder) *Collection {
	c := &Collection{name: name, emb: emb}
	c.ptr.Store(&snapshot{byAlias: map[string]int{}, byCanon: map[string]int{}})
	return c
}

// Seed installs the initial entry set, computing any missing embedding by
// calling the embedder. It is equivalent to Update but named for the
// startup-time verify-and-regenerate pass.
func (c *Collection) Seed(ctx context.Context, entries []Entry) error {
	return c.Update(ctx, entries)
}

// Update replaces the collection's entries, regenerating any embedding left
// nil by the caller, then atomically swaps in the new snapshot. Writes are
// admin-only and invalidate the nearest/fuzzy caches sitting in front of
// this collection (the caller owns that cache and clears it after Update
// returns).
func (c *Collection) Update(ctx context.Context, entries []Entry) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	out := make([]Entry, len(entries))
	copy(out, entries)

	var toEmbed []string
	var toEmbedIdx []int
	for i, e := range out {
		if len(e.Embedding) == 0 {
			toEmbed = append(toEmbed, embedText(e))
			toEmbedIdx = append(toEmbedIdx, i)
		}
	}
	if len(toEmbed) > 0 {
		if c.emb == nil {
			return fmt.Errorf("refdata[%s]: %d entries missing embeddings and no embedder configured", c.name, len(toEmbed))
		}
		vecs, err := c.emb.Embed(ctx, toEmbed)
		if err != nil {
			return fmt.Errorf("refdata[%s]: regenerate embeddings: %w", c.name, err)
		}
		for i, idx := range toEmbedIdx {
			out[idx].Embedding = vecs[i]
		}
	}

	byAlias := make(map[string]int, len(out)*2)
	byCanon := make(map[string]int, len(out))
	for i, e := range out {
		byCanon[normalize(e.CanonicalName)] = i
		byAlias[normalize(e.CanonicalName)] = i
		for _, a := range e.Aliases {
			byAlias[normalize(a)] = i
		}
	}

	c.ptr.Store(&snapshot{entries: out, byAlias: byAlias, byCanon: byCanon})
	return nil
}

func embedText(e Entry) string {
	return e.CanonicalName
}

// LookupExact returns the canonical entry for name after case/whitespace
// normalization, matching against both canonical names and aliases.
func (c *Collection) LookupExact(name string) (Entry, bool) {
	snap := c.ptr.Load()
	idx, ok := snap.byAlias[normalize(name)]
	if !ok {
		return Entry{}, false
	}
	return snap.entries[idx], true
}

// LookupNearest returns the k entries whose embedding has the highest
// cosine similarity to vec, descending.
func (c *Collection) LookupNearest(vec []float32, k int) []Scored {
	snap := c.ptr.Load()
	if k <= 0 {
		k = 1
	}
	out := make([]Scored, 0, len(snap.entries))
	for _, e := range snap.entries {
		out = append(out, Scored{Entry: e, Score: cosine(vec, e.Embedding)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// LookupFuzzy returns the k entries whose canonical name is closest to name
// under normalized Levenshtein similarity, descending.
func (c *Collection) LookupFuzzy(name string, k int) []Scored {
	snap := c.ptr.Load()
	if k <= 0 {
		k = 1
	}
	n := normalize(name)
	out := make([]Scored, 0, len(snap.entries))
	for _, e := range snap.entries {
		out = append(out, Scored{Entry: e, Score: levenshteinSimilarity(n, normalize(e.CanonicalName))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Len returns the number of entries currently installed.
func (c *Collection) Len() int { return len(c.ptr.Load().entries) }

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// levenshteinSimilarity maps edit distance to a [0,1] similarity score
// normalized by the longer string's length, so short strings are not
// unfairly penalized relative to long ones.
func levenshteinSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, x := range a {
		na += float64(x) * float64(x)
	}
	for _, x := range b {
		nb += float64(x) * float64(x)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
