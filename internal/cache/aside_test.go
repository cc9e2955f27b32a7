package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAside_CollapsesConcurrentMisses(t *testing.T) {
	t.Parallel()
	a := NewAside(NewMemory())
	ctx := context.Background()

	var calls int64
	load := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return []byte("value"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := a.GetOrLoad(ctx, "k", time.Minute, load)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if string(v) != "value" {
				t.Errorf("unexpected value: %s", v)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("expected exactly 1 load call, got %d", got)
	}
}

func TestAside_InvalidateForcesReload(t *testing.T) {
	t.Parallel()
	a := NewAside(NewMemory())
	ctx := context.Background()
	var calls int64
	load := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		return []byte("v"), nil
	}
	if _, err := a.GetOrLoad(ctx, "k", time.Minute, load); err != nil {
		t.Fatal(err)
	}
	if err := a.Invalidate(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.GetOrLoad(ctx, "k", time.Minute, load); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Fatalf("expected 2 load calls after invalidation, got %d", got)
	}
}
