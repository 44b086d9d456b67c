// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tubemux/internal/pipeline/model"
)

func fastPolicy(n int) RetryPolicy {
	return RetryPolicy{MaxAttempts: n, MinDelay: time.Millisecond}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	// K failures followed by success: result is the success, K+1 calls.
	for k := 0; k < 4; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			calls := 0
			v, err := RetryValue(context.Background(), fastPolicy(4), "src", func(context.Context) (string, error) {
				calls++
				if calls <= k {
					return "", errors.New("transient")
				}
				return "ok", nil
			})
			require.NoError(t, err)
			assert.Equal(t, "ok", v)
			assert.Equal(t, k+1, calls)
		})
	}
}

func TestRetryExhaustedWrapsLastError(t *testing.T) {
	calls := 0
	last := errors.New("attempt 3")
	err := Retry(context.Background(), fastPolicy(3), "src", func(context.Context) error {
		calls++
		if calls == 3 {
			return last
		}
		return fmt.Errorf("attempt %d", calls)
	})

	var ae *model.AcquisitionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 3, ae.Attempts)
	assert.Equal(t, "src", ae.Source)
	assert.ErrorIs(t, err, last)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), "src", func(context.Context) error {
		calls++
		return fmt.Errorf("lookup: %w", model.ErrNotFound)
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
	var ae *model.AcquisitionError
	assert.False(t, errors.As(err, &ae))
	assert.Equal(t, 1, calls)
}

func TestRetryUsesFixedDelay(t *testing.T) {
	start := time.Now()
	_ = Retry(context.Background(), RetryPolicy{MaxAttempts: 3, MinDelay: 30 * time.Millisecond}, "src", func(context.Context) error {
		return errors.New("x")
	})
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestRetryAbortsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, RetryPolicy{MaxAttempts: 10, MinDelay: time.Hour}, "src", func(context.Context) error {
			calls++
			return errors.New("x")
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, model.ReasonCancelled, model.Classify(err))
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not abort on cancel")
	}
	assert.Equal(t, 1, calls)
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{}, "src", func(context.Context) error {
		calls++
		return errors.New("x")
	})
	var ae *model.AcquisitionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, calls)
}
