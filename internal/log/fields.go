// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldBatchID   = "batch_id"
	FieldTaskID    = "task_id"
	FieldListener  = "listener_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldState     = "state"
	FieldAttempt   = "attempt"
	FieldExitCode  = "exit_code"
	FieldPID       = "pid"

	// Media fields
	FieldSource   = "source"
	FieldFormat   = "format"
	FieldQuality  = "quality"
	FieldFilename = "filename"
	FieldKind     = "kind"

	// HTTP fields
	FieldMethod   = "method"
	FieldPath     = "path"
	FieldStatus   = "status"
	FieldDuration = "duration_ms"
	FieldBytes    = "bytes"
	FieldRemote   = "remote_addr"
)
