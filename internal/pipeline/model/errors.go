// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by extractors when an identifier does not resolve.
var ErrNotFound = errors.New("source not found")

// ValidationError reports malformed request input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AcquisitionError means resolving or opening a source failed after all attempts.
type AcquisitionError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s failed after %d attempt(s): %v", e.Source, e.Attempts, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// FormatNotFoundError means no stream satisfies the requested kind/quality.
type FormatNotFoundError struct {
	Source    string
	Kind      string
	Requested string
	Available []string
}

func (e *FormatNotFoundError) Error() string {
	msg := fmt.Sprintf("no %s stream for %s", e.Kind, e.Source)
	if e.Requested != "" {
		msg += " (requested " + e.Requested + ")"
	}
	if len(e.Available) > 0 {
		msg += "; available: " + strings.Join(e.Available, ", ")
	}
	return msg
}

// TranscodeError carries the transcoder exit code and trailing diagnostics.
type TranscodeError struct {
	ExitCode    int
	Diagnostics []string
	Err         error
}

func (e *TranscodeError) Error() string {
	msg := fmt.Sprintf("transcode failed (exit %d)", e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if n := len(e.Diagnostics); n > 0 {
		msg += ": " + e.Diagnostics[n-1]
	}
	return msg
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// TimeoutError reports an expired task or batch deadline.
type TimeoutError struct {
	Scope string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Scope, e.After)
}

// Is lets TimeoutError match context.DeadlineExceeded.
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// CancelledError means the consumer went away and work was torn down.
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string {
	if e.Err == nil {
		return "cancelled"
	}
	return "cancelled: " + e.Err.Error()
}

func (e *CancelledError) Unwrap() error { return e.Err }

// Reason values returned by Classify.
const (
	ReasonValidation     = "validation"
	ReasonNotFound       = "not_found"
	ReasonAcquisition    = "acquisition"
	ReasonFormatNotFound = "format_not_found"
	ReasonTranscode      = "transcode"
	ReasonTimeout        = "timeout"
	ReasonCancelled      = "cancelled"
	ReasonInternal       = "internal"
)

// Classify maps an error onto a stable reason label.
func Classify(err error) string {
	var (
		ve *ValidationError
		fe *FormatNotFoundError
		te *TranscodeError
		to *TimeoutError
		ce *CancelledError
		ae *AcquisitionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ReasonValidation
	case errors.As(err, &ce):
		return ReasonCancelled
	case errors.As(err, &to):
		return ReasonTimeout
	case errors.As(err, &fe):
		return ReasonFormatNotFound
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.As(err, &ae):
		return ReasonAcquisition
	case errors.As(err, &te):
		return ReasonTranscode
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	}
	return ReasonInternal
}

// IsRetryable reports whether another acquisition attempt could succeed.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case ReasonValidation, ReasonNotFound, ReasonFormatNotFound, ReasonCancelled:
		return false
	}
	return !errors.Is(err, context.Canceled)
}
