package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"materialscat/internal/cache"
)

// jobTTL is the cache fallback's retention for job rows; results held
// only in cache are ephemeral and age out after a day.
const jobTTL = 24 * time.Hour

type jobDoc struct {
	RequestID string
	CreatedAt time.Time
	Items     map[string]JobItem // keyed by material_id
	Order     []string           // preserves insertion order for deterministic Items()
}

// cacheJobStore is the fallback Store used when the SQL backend is
// unavailable or disabled. Mutations are serialized by an in-process mutex
// per request_id standing in for the cache adapter's lack of a native
// compare-and-set primitive").
type cacheJobStore struct {
	c cache.Cache

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewCacheStore builds a Store backed by the cache adapter. Rows are
// ephemeral: they age out after jobTTL with no durable backing, which
// Ephemeral() surfaces so callers can warn API consumers.
func NewCacheStore(c cache.Cache) Store {
	return &cacheJobStore{c: c, locks: make(map[string]*sync.Mutex)}
}

func (s *cacheJobStore) lockFor(requestID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[requestID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[requestID] = l
	}
	return l
}

func jobDocKey(requestID string) string { return "job:" + requestID }

func (s *cacheJobStore) CreateJob(ctx context.Context, requestID string, items []Item) error {
	doc := jobDoc{
		RequestID: requestID,
		CreatedAt: time.Now(),
		Items:     make(map[string]JobItem, len(items)),
		Order:     make([]string, 0, len(items)),
	}
	for _, it := range items {
		doc.Items[it.MaterialID] = JobItem{MaterialID: it.MaterialID, Status: StatusPending}
		doc.Order = append(doc.Order, it.MaterialID)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.c.Set(ctx, jobDocKey(requestID), raw, jobTTL)
}

func (s *cacheJobStore) UpdateItem(ctx context.Context, requestID, materialID string, update func(*JobItem)) error {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	doc, ok, err := s.loadDoc(ctx, requestID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ingestion: job %s not found in cache store", requestID)
	}
	it, ok := doc.Items[materialID]
	if !ok {
		return fmt.Errorf("ingestion: job item %s/%s not found", requestID, materialID)
	}
	update(&it)
	doc.Items[materialID] = it

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.c.Set(ctx, jobDocKey(requestID), raw, jobTTL)
}

func (s *cacheJobStore) loadDoc(ctx context.Context, requestID string) (jobDoc, bool, error) {
	raw, ok, err := s.c.Get(ctx, jobDocKey(requestID))
	if err != nil || !ok {
		return jobDoc{}, ok, err
	}
	var doc jobDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return jobDoc{}, false, err
	}
	return doc, true, nil
}

func (s *cacheJobStore) Job(ctx context.Context, requestID string) (Job, bool, error) {
	doc, ok, err := s.loadDoc(ctx, requestID)
	if err != nil || !ok {
		return Job{}, ok, err
	}
	j := Job{RequestID: doc.RequestID, CreatedAt: doc.CreatedAt, Total: len(doc.Items), Ephemeral: true}
	counts := make(map[ItemStatus]int)
	for _, it := range doc.Items {
		counts[it.Status]++
	}
	for st, n := range counts {
		applyCount(&j, st, n)
	}
	return j, true, nil
}

func (s *cacheJobStore) Items(ctx context.Context, requestID string) ([]JobItem, bool, error) {
	doc, ok, err := s.loadDoc(ctx, requestID)
	if err != nil || !ok {
		return nil, ok, err
	}
	out := make([]JobItem, 0, len(doc.Order))
	for _, id := range doc.Order {
		out = append(out, doc.Items[id])
	}
	return out, true, nil
}

func (s *cacheJobStore) Ephemeral() bool { return true }
