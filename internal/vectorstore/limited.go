package vectorstore

import "context"

// Limiter is the slot-based budget limited stores acquire before each
// backend call (the pool manager's semaphore pool implements it).
type Limiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// NewLimited wraps store so every call holds one limiter slot for its
// duration, bounding concurrent in-flight requests against the backend.
func NewLimited(store Store, limiter Limiter) Store {
	return &limitedStore{next: store, limiter: limiter}
}

type limitedStore struct {
	next    Store
	limiter Limiter
}

func (l *limitedStore) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	if err := l.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer l.limiter.Release()
	return l.next.Upsert(ctx, id, vector, metadata)
}

func (l *limitedStore) BatchUpsert(ctx context.Context, points []Point) error {
	if err := l.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer l.limiter.Release()
	return l.next.BatchUpsert(ctx, points)
}

func (l *limitedStore) Delete(ctx context.Context, id string) error {
	if err := l.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer l.limiter.Release()
	return l.next.Delete(ctx, id)
}

func (l *limitedStore) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error) {
	if err := l.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer l.limiter.Release()
	return l.next.SimilaritySearch(ctx, vector, k, filter)
}

func (l *limitedStore) Get(ctx context.Context, id string) (Result, bool, error) {
	if err := l.limiter.Acquire(ctx); err != nil {
		return Result{}, false, err
	}
	defer l.limiter.Release()
	return l.next.Get(ctx, id)
}

func (l *limitedStore) BatchGet(ctx context.Context, ids []string) (map[string]Result, error) {
	if err := l.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer l.limiter.Release()
	return l.next.BatchGet(ctx, ids)
}
