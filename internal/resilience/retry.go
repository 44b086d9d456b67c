// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience holds failure-handling primitives for upstream calls.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/tubemux/internal/log"
	"github.com/ManuGH/tubemux/internal/metrics"
	"github.com/ManuGH/tubemux/internal/pipeline/model"
)

// RetryPolicy is a fixed-delay retry budget.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	// MinDelay is the constant pause between attempts.
	MinDelay time.Duration
	// Retryable decides whether a failure is worth another attempt.
	// Defaults to model.IsRetryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy is 4 attempts, 2s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, MinDelay: 2 * time.Second}
}

// NoRetry runs the operation once.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// Retry calls op until it succeeds or the policy is exhausted. Exhaustion
// yields *model.AcquisitionError wrapping the last failure. Failures that
// are not retryable are returned unchanged.
func Retry(ctx context.Context, p RetryPolicy, source string, op func(context.Context) error) error {
	_, err := RetryValue(ctx, p, source, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// RetryValue is Retry for operations that produce a value.
func RetryValue[T any](ctx context.Context, p RetryPolicy, source string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = model.IsRetryable
	}
	logger := log.WithComponentFromContext(ctx, "retry")

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("acquire %s aborted: %w", source, err)
		}

		v, err := op(ctx)
		if err == nil {
			metrics.IncRetryAttempt("ok")
			return v, nil
		}
		last = err

		if ctx.Err() != nil {
			return zero, fmt.Errorf("acquire %s aborted: %w", source, ctx.Err())
		}
		if !retryable(err) {
			metrics.IncRetryAttempt("fatal")
			return zero, err
		}
		if attempt == attempts {
			break
		}

		metrics.IncRetryAttempt("retry")
		logger.Warn().
			Err(err).
			Str(log.FieldSource, source).
			Int(log.FieldAttempt, attempt).
			Dur("delay", p.MinDelay).
			Msg("acquisition failed, retrying")

		if p.MinDelay > 0 {
			timer := time.NewTimer(p.MinDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("acquire %s aborted: %w", source, ctx.Err())
			case <-timer.C:
			}
		}
	}

	metrics.IncRetryAttempt("exhausted")
	return zero, &model.AcquisitionError{Source: source, Attempts: attempts, Err: last}
}
