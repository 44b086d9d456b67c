// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package limiter

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNeverExceedsCapacity(t *testing.T) {
	const capacity, tasks = 3, 20
	l := New(capacity)

	var cur, peak atomic.Int64
	futures := make([]*Future[int], 0, tasks)
	for i := 0; i < tasks; i++ {
		futures = append(futures, Submit(context.Background(), l, func(context.Context) (int, error) {
			n := cur.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			assert.LessOrEqual(t, l.InFlight(), capacity)
			time.Sleep(5 * time.Millisecond)
			cur.Add(-1)
			return i, nil
		}))
	}

	for i, f := range futures {
		v, err := f.Wait(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.LessOrEqual(t, peak.Load(), int64(capacity))
	assert.Equal(t, int64(capacity), peak.Load())
	assert.Equal(t, 0, l.InFlight())
}

// hold occupies every slot of l until the returned func is called.
func hold(t *testing.T, l *Limiter) func() {
	t.Helper()
	release := make(chan struct{})
	var futures []*Future[struct{}]
	for i := 0; i < l.Capacity(); i++ {
		futures = append(futures, Submit(context.Background(), l, func(context.Context) (struct{}, error) {
			<-release
			return struct{}{}, nil
		}))
	}
	require.Eventually(t, func() bool { return l.InFlight() == l.Capacity() }, time.Second, time.Millisecond)
	return func() {
		close(release)
		for _, f := range futures {
			_, _ = f.Wait(context.Background())
		}
	}
}

func TestFIFOAdmissionBackToBack(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(4))

	const rounds, tasks = 200, 20
	want := make([]int, tasks)
	for i := range want {
		want[i] = i
	}

	for r := 0; r < rounds; r++ {
		l := New(1)
		unblock := hold(t, l)

		var (
			mu    sync.Mutex
			order []int
		)
		futures := make([]*Future[struct{}], 0, tasks)
		for i := 0; i < tasks; i++ {
			futures = append(futures, Submit(context.Background(), l, func(context.Context) (struct{}, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return struct{}{}, nil
			}))
		}
		assert.Equal(t, tasks, l.Queued())

		unblock()
		for _, f := range futures {
			_, err := f.Wait(context.Background())
			require.NoError(t, err)
		}
		require.Equal(t, want, order, "round %d", r)
	}
}

func TestFIFOWithWiderCapacity(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(4))

	l := New(3)
	unblock := hold(t, l)

	var (
		mu      sync.Mutex
		started []int
	)
	gate := make(chan struct{})
	futures := make([]*Future[struct{}], 0, 9)
	for i := 0; i < 9; i++ {
		futures = append(futures, Submit(context.Background(), l, func(context.Context) (struct{}, error) {
			mu.Lock()
			started = append(started, i)
			mu.Unlock()
			<-gate
			return struct{}{}, nil
		}))
	}

	unblock()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(started) == 3
	}, time.Second, time.Millisecond)
	mu.Lock()
	assert.ElementsMatch(t, []int{0, 1, 2}, started)
	mu.Unlock()

	close(gate)
	for _, f := range futures {
		_, _ = f.Wait(context.Background())
	}
}

func TestAcquireHandsSlotToQueuedSubmission(t *testing.T) {
	l := New(1)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	var ran atomic.Bool
	f := Submit(context.Background(), l, func(context.Context) (struct{}, error) {
		ran.Store(true)
		return struct{}{}, nil
	})
	assert.Equal(t, 1, l.Queued())
	assert.False(t, ran.Load())

	release()
	release()
	_, err = f.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, ran.Load())

	// The double release above must not have minted a second slot.
	r1, err := l.Acquire(context.Background())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	r1()
}

func TestAcquireCancelledWhileQueued(t *testing.T) {
	l := New(1)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	r, err := l.Acquire(context.Background())
	require.NoError(t, err, "abandoned waiter must not keep the slot")
	r()
}

func TestPanicIsIsolated(t *testing.T) {
	l := New(2)
	bad := Submit(context.Background(), l, func(context.Context) (string, error) { panic("boom") })
	good := Submit(context.Background(), l, func(context.Context) (string, error) { return "ok", nil })

	_, err := bad.Wait(context.Background())
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "boom", pe.Value)

	v, err := good.Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestQueuedSubmissionDroppedOnCancel(t *testing.T) {
	l := New(1)
	release := make(chan struct{})
	blocker := Submit(context.Background(), l, func(context.Context) (int, error) {
		<-release
		return 0, nil
	})
	require.Eventually(t, func() bool { return l.InFlight() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	f := Submit(ctx, l, func(context.Context) (int, error) {
		ran.Store(true)
		return 1, nil
	})
	cancel()

	_, err := f.Wait(context.Background())
	assert.True(t, errors.Is(err, context.Canceled))
	close(release)
	_, _ = blocker.Wait(context.Background())
	assert.False(t, ran.Load())
	assert.Equal(t, 0, l.Queued())
}

func TestFutureWaitBoundedByContext(t *testing.T) {
	l := New(1)
	release := make(chan struct{})
	f := Submit(context.Background(), l, func(context.Context) (int, error) {
		<-release
		return 7, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestDefaultCapacity(t *testing.T) {
	assert.GreaterOrEqual(t, LogicalCPUs(), 1)
	assert.Equal(t, 2*LogicalCPUs(), DefaultCapacity())
	assert.Equal(t, DefaultCapacity(), New(0).Capacity())
}
