// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tubemux/internal/pipeline/model"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

var errUpstream = errors.New("upstream down")

func TestCircuitBreakerTripsAndRecovers(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 2, 10*time.Second, WithClock(clock))

	fail := func() error { return errUpstream }
	ok := func() error { return nil }

	assert.ErrorIs(t, cb.Execute(fail), errUpstream)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(fail), errUpstream)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	clock.now = clock.now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, time.Second, WithClock(clock))

	_ = cb.Execute(func() error { return errUpstream })
	require.Equal(t, StateOpen, cb.State())

	clock.now = clock.now.Add(2 * time.Second)
	_ = cb.Execute(func() error { return errUpstream })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerIgnoresUncountedErrors(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute, WithFailurePredicate(model.IsRetryable))

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return model.ErrNotFound }), model.ErrNotFound)
	}
	assert.Equal(t, StateClosed, cb.State())
}
