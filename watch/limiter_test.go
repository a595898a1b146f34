package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_FirstPermitIsImmediate(t *testing.T) {
	limiter := NewLimiterWithBudget(4, time.Second)

	start := time.Now()
	require.NoError(t, limiter.Acquire(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond, "first permit should not wait")
}

func TestLimiter_PermitsAreSpacedByRefill(t *testing.T) {
	// 4 permits per 400ms means one refill every 100ms.
	limiter := NewLimiterWithBudget(4, 400*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Acquire(ctx))
	}
	elapsed := time.Since(start)

	// First permit free, the next four wait ~100ms each.
	assert.GreaterOrEqual(t, elapsed, 350*time.Millisecond, "budget must be enforced")
	assert.Less(t, elapsed, time.Second, "starvation is bounded by the refill rate")
}

func TestLimiter_SharedAcrossConcurrentCallers(t *testing.T) {
	// Two pollers sharing one bucket: the combined acquisition rate is
	// bounded, not the per-caller rate.
	limiter := NewLimiterWithBudget(4, 400*time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				require.NoError(t, limiter.Acquire(ctx))
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// Six acquisitions total: first free, five refills at 100ms.
	assert.GreaterOrEqual(t, elapsed, 450*time.Millisecond)
}

func TestLimiter_AcquireHonorsCancellation(t *testing.T) {
	limiter := NewLimiterWithBudget(1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	// Drain the single token so the next caller must wait.
	require.NoError(t, limiter.Acquire(ctx))

	done := make(chan error, 1)
	go func() {
		done <- limiter.Acquire(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.Error(t, err, "a cancelled waiter must not receive a permit")
	case <-time.After(time.Second):
		t.Fatal("Acquire did not observe cancellation")
	}
}
