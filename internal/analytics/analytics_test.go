package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryHash_StableRegardlessOfFilterOrder(t *testing.T) {
	a := QueryHash("hybrid", "цемент", map[string]string{"category": "binders", "unit": "кг"})
	b := QueryHash("hybrid", "цемент", map[string]string{"unit": "кг", "category": "binders"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestQueryHash_DiffersByMode(t *testing.T) {
	a := QueryHash("vector", "цемент", nil)
	b := QueryHash("fuzzy", "цемент", nil)
	assert.NotEqual(t, a, b)
}

func TestRecorder_RecordsPersistToStore(t *testing.T) {
	store := NewMemoryStore()
	r := New(store, 10, zerolog.Nop())
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)

	r.Record("hybrid", "цемент", nil, 42*time.Millisecond, 5, now)
	r.Close()

	recs, err := store.Day(context.Background(), "2026-07-29")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "hybrid", recs[0].Mode)
	assert.Equal(t, 5, recs[0].ResultCount)
	assert.Equal(t, int64(42), recs[0].DurationMS)
}

func TestRecorder_DropsWhenQueueFullWithoutBlocking(t *testing.T) {
	store := NewMemoryStore()
	r := New(store, 1, zerolog.Nop())
	now := time.Now()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			r.Record("vector", "x", nil, time.Millisecond, 1, now)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked instead of dropping under backpressure")
	}
	r.Close()
}
