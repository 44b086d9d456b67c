// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package limiter bounds how many pipeline tasks run at once. Waiting
// submissions are admitted in arrival order.
package limiter

import (
	"container/list"
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/cpu"

	"github.com/ManuGH/tubemux/internal/log"
	"github.com/ManuGH/tubemux/internal/metrics"
)

// LogicalCPUs reports the host's logical CPU count.
func LogicalCPUs() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	return n
}

// DefaultCapacity is twice the number of logical CPUs.
func DefaultCapacity() int { return LogicalCPUs() * 2 }

// Limiter admits at most Capacity tasks at a time. Queue position is
// taken on the submitting goroutine, so waiters start in submission order.
type Limiter struct {
	capacity int

	mu      sync.Mutex
	held    int
	waiters list.List // of chan struct{}

	inFlight atomic.Int64
	queued   atomic.Int64
}

// New creates a limiter. capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity()
	}
	return &Limiter{capacity: capacity}
}

type ticket struct {
	ready chan struct{}
	elem  *list.Element
}

// enqueue grants a free slot immediately or appends a waiter. Slots are
// never granted past existing waiters.
func (l *Limiter) enqueue() ticket {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := ticket{ready: make(chan struct{})}
	if l.held < l.capacity && l.waiters.Len() == 0 {
		l.held++
		close(t.ready)
		return t
	}
	t.elem = l.waiters.PushBack(t.ready)
	return t
}

// await blocks until t is granted or ctx ends. A slot granted to an
// already cancelled caller is handed on.
func (l *Limiter) await(ctx context.Context, t ticket) error {
	if ctx.Err() == nil {
		select {
		case <-t.ready:
			return nil
		case <-ctx.Done():
		}
	}

	l.mu.Lock()
	select {
	case <-t.ready:
		l.mu.Unlock()
		l.release()
	default:
		l.waiters.Remove(t.elem)
		l.mu.Unlock()
	}
	return ctx.Err()
}

// release passes the slot to the oldest waiter or frees it.
func (l *Limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if front := l.waiters.Front(); front != nil {
		l.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	l.held--
}

// Acquire blocks the caller until a slot is free and returns its release
// func. Callers that must keep a strict start order acquire from a single
// goroutine.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.await(ctx, l.enqueue()); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(l.release) }, nil
}

// Capacity returns the configured bound.
func (l *Limiter) Capacity() int { return l.capacity }

// InFlight returns the number of running tasks.
func (l *Limiter) InFlight() int { return int(l.inFlight.Load()) }

// Queued returns the number of submissions waiting for a slot.
func (l *Limiter) Queued() int { return int(l.queued.Load()) }

// PanicError is the result of a task that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("task panicked: %v", e.Value) }

// Future is the pending result of a submission.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the submission settled.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the submission settled or ctx ends. ctx only bounds
// the wait; it does not cancel the task.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit queues fn. If ctx ends while the submission is still queued it
// is dropped without running and settles with ctx's error.
func Submit[T any](ctx context.Context, l *Limiter, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	t := l.enqueue()
	l.queued.Add(1)
	metrics.TasksQueued.Inc()
	go func() {
		defer close(f.done)

		err := l.await(ctx, t)
		l.queued.Add(-1)
		metrics.TasksQueued.Dec()
		if err != nil {
			f.err = err
			return
		}
		defer l.release()

		l.inFlight.Add(1)
		metrics.TasksInFlight.Inc()
		defer func() {
			l.inFlight.Add(-1)
			metrics.TasksInFlight.Dec()
		}()

		f.val, f.err = run(ctx, fn)
	}()
	return f
}

func run[T any](ctx context.Context, fn func(context.Context) (T, error)) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.FromContext(ctx).Error().
				Str(log.FieldComponent, "limiter").
				Interface("panic", r).
				Bytes("stack", stack).
				Msg("task panicked")
			var zero T
			val, err = zero, &PanicError{Value: r, Stack: stack}
		}
	}()
	return fn(ctx)
}
