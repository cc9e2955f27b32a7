package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	mu      sync.Mutex
	name    string
	size    int32
	inUse   int32
	resized []int32
}

func (f *fakePool) Name() string { return f.name }

func (f *fakePool) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{Size: f.size, InUse: f.inUse}
}

func (f *fakePool) Resize(capacity int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = capacity
	f.resized = append(f.resized, capacity)
}

func TestManager_GrowsAboveHighWatermark(t *testing.T) {
	m := NewManager(zerolog.Nop())
	fp := &fakePool{name: "vector", size: 10, inUse: 9}
	m.Register(fp, Config{Min: 2, Max: 32, HighWatermark: 0.8, LowWatermark: 0.4, SampleInterval: time.Hour})

	s := m.pools[0]
	m.sample(context.Background(), s)

	assert.Equal(t, int32(12), s.target) // 10 + 20%
	assert.Equal(t, []int32{12}, fp.resized)
}

func TestManager_ShrinksBelowLowWatermarkAndClampsAtMin(t *testing.T) {
	m := NewManager(zerolog.Nop())
	fp := &fakePool{name: "cache", size: 5, inUse: 1}
	m.Register(fp, Config{Min: 4, Max: 32, HighWatermark: 0.8, LowWatermark: 0.4, SampleInterval: time.Hour})

	s := m.pools[0]
	m.sample(context.Background(), s)
	assert.Equal(t, int32(4), s.target)

	fp.mu.Lock()
	fp.inUse = 0
	fp.mu.Unlock()
	m.sample(context.Background(), s)
	assert.Equal(t, int32(4), s.target) // already at Min, no further shrink
}

func TestManager_SteadyUtilizationLeavesTargetAlone(t *testing.T) {
	m := NewManager(zerolog.Nop())
	fp := &fakePool{name: "sql", size: 10, inUse: 6}
	m.Register(fp, Config{Min: 2, Max: 32, HighWatermark: 0.8, LowWatermark: 0.4, SampleInterval: time.Hour})

	s := m.pools[0]
	m.sample(context.Background(), s)
	assert.Equal(t, int32(10), s.target)
	assert.Empty(t, fp.resized)
}

func TestSemaphorePool_AcquireBlocksAtCapacity(t *testing.T) {
	sp := NewSemaphorePool("vector", 1)
	require.NoError(t, sp.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := sp.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	sp.Release()
	require.NoError(t, sp.Acquire(context.Background()))
	sp.Release()
}

func TestSemaphorePool_ResizeAdmitsWaiters(t *testing.T) {
	sp := NewSemaphorePool("vector", 1)
	require.NoError(t, sp.Acquire(context.Background()))

	acquired := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		acquired <- sp.Acquire(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	sp.Resize(2)

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not admitted after resize")
	}
	assert.Equal(t, int32(2), sp.Stats().InUse)
}
