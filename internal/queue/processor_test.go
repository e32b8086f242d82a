package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllItemsAreProcessed(t *testing.T) {
	var processed atomic.Int64
	p := NewProcessor("test", Config{Lanes: 2, MaxConcurrentPerLane: 2, LaneCapacity: 4},
		func(ctx context.Context, item int) error {
			processed.Add(1)
			return nil
		})
	p.Start(context.Background())

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Enqueue(ctx, i, false))
	}
	p.Stop()

	assert.EqualValues(t, 20, processed.Load())
	stats := p.Statistics()
	assert.EqualValues(t, 20, stats.Processed)
	assert.EqualValues(t, 0, stats.Errors)
	assert.EqualValues(t, 0, stats.Queued)
}

func TestBackPressureBoundsInFlight(t *testing.T) {
	const perLane = 2
	var inFlight, peak atomic.Int64

	p := NewProcessor("bp", Config{Lanes: 2, MaxConcurrentPerLane: perLane, LaneCapacity: 4},
		func(ctx context.Context, item int) error {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		})
	p.Start(context.Background())

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Enqueue(ctx, i, false))
	}
	p.Stop()

	assert.EqualValues(t, 20, p.Statistics().Processed)
	assert.LessOrEqual(t, peak.Load(), int64(2*perLane))
}

func TestEnqueueBlocksWhenFullAndHonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	p := NewProcessor("full", Config{Lanes: 1, MaxConcurrentPerLane: 1, LaneCapacity: 2},
		func(ctx context.Context, item int) error {
			<-release
			return nil
		})
	p.Start(context.Background())
	defer func() { close(release); p.Stop() }()

	ctx := context.Background()
	// The lane absorbs one processing item, one in the reader's hand and
	// two buffered; the fifth enqueue must block.
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Enqueue(ctx, i, false))
	}

	// The next enqueue blocks until cancelled; it is not silently dropped,
	// the caller observes the cancellation.
	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := p.Enqueue(cancelCtx, 3, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPriorityLane(t *testing.T) {
	var order sync.Mutex
	var seen []string
	block := make(chan struct{})

	p := NewProcessor("prio", Config{Lanes: 1, MaxConcurrentPerLane: 1, LaneCapacity: 8},
		func(ctx context.Context, item string) error {
			if item == "slow" {
				<-block
			}
			order.Lock()
			seen = append(seen, item)
			order.Unlock()
			return nil
		})
	p.Start(context.Background())

	ctx := context.Background()
	// Saturate the normal lane with a slow item.
	require.NoError(t, p.Enqueue(ctx, "slow", false))

	// A priority item overtakes because the priority lane has its own
	// reader and semaphore.
	require.NoError(t, p.Enqueue(ctx, "urgent", true))
	require.Eventually(t, func() bool {
		order.Lock()
		defer order.Unlock()
		return len(seen) == 1 && seen[0] == "urgent"
	}, time.Second, time.Millisecond)

	close(block)
	p.Stop()
}

func TestProcessorErrorsAreCountedNotFatal(t *testing.T) {
	p := NewProcessor("err", Config{Lanes: 1, MaxConcurrentPerLane: 1, LaneCapacity: 8},
		func(ctx context.Context, item int) error {
			if item%2 == 0 {
				return errors.New("boom")
			}
			return nil
		})
	p.Start(context.Background())

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		require.NoError(t, p.Enqueue(ctx, i, false))
	}
	p.Stop()

	stats := p.Statistics()
	assert.EqualValues(t, 3, stats.Processed)
	assert.EqualValues(t, 3, stats.Errors)
}

func TestProcessorPanicDoesNotKillLane(t *testing.T) {
	var processed atomic.Int64
	p := NewProcessor("panic", Config{Lanes: 1, MaxConcurrentPerLane: 1, LaneCapacity: 8},
		func(ctx context.Context, item int) error {
			if item == 0 {
				panic("exploding item")
			}
			processed.Add(1)
			return nil
		})
	p.Start(context.Background())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Enqueue(ctx, i, false))
	}
	p.Stop()

	assert.EqualValues(t, 2, processed.Load())
	assert.EqualValues(t, 1, p.Statistics().Errors)
}

func TestEnqueueBatchRoundRobin(t *testing.T) {
	var processed atomic.Int64
	p := NewProcessor("batch", Config{Lanes: 3, MaxConcurrentPerLane: 2, LaneCapacity: 16},
		func(ctx context.Context, item int) error {
			processed.Add(1)
			return nil
		})
	p.Start(context.Background())

	items := make([]int, 12)
	for i := range items {
		items[i] = i
	}
	require.NoError(t, p.EnqueueBatch(context.Background(), items, false))
	p.Stop()

	assert.EqualValues(t, 12, processed.Load())
}

func TestPauseGatesIntake(t *testing.T) {
	p := NewProcessor("pause", Config{Lanes: 1, MaxConcurrentPerLane: 1, LaneCapacity: 8},
		func(ctx context.Context, item int) error { return nil })
	p.Start(context.Background())
	defer p.Stop()

	resume := p.Pause()

	enqueued := make(chan error, 1)
	go func() {
		enqueued <- p.Enqueue(context.Background(), 1, false)
	}()

	select {
	case <-enqueued:
		t.Fatal("enqueue completed while paused")
	case <-time.After(50 * time.Millisecond):
	}

	resume()
	require.NoError(t, <-enqueued)

	// Resume is idempotent.
	assert.NotPanics(t, resume)
}

func TestEnqueueAfterStop(t *testing.T) {
	p := NewProcessor("stopped", Config{Lanes: 1}, func(ctx context.Context, item int) error { return nil })
	p.Start(context.Background())
	p.Stop()

	err := p.Enqueue(context.Background(), 1, false)
	assert.ErrorIs(t, err, ErrStopped)

	// Stop is idempotent.
	assert.NotPanics(t, p.Stop)
}

func TestLeastLoadedLaneSelection(t *testing.T) {
	block := make(chan struct{})
	p := NewProcessor("lanes", Config{Lanes: 2, MaxConcurrentPerLane: 1, LaneCapacity: 8},
		func(ctx context.Context, item int) error {
			<-block
			return nil
		})
	p.Start(context.Background())

	ctx := context.Background()
	// Fill lane 0 with work, then verify new items spread to lane 1.
	require.NoError(t, p.Enqueue(ctx, 0, false))
	require.NoError(t, p.Enqueue(ctx, 1, false))

	stats := p.Statistics()
	assert.EqualValues(t, 1, stats.LaneWorkload[0])
	assert.EqualValues(t, 1, stats.LaneWorkload[1])

	close(block)
	p.Stop()
}
