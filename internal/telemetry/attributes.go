// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Pipeline attributes
	BatchIDKey       = "batch.id"
	BatchSizeKey     = "batch.size"
	BatchDeliveryKey = "batch.delivery"
	TaskIDKey        = "task.id"
	TaskKindKey      = "task.kind"
	TaskFormatKey    = "task.format"
	TaskQualityKey   = "task.quality"
	TaskStateKey     = "task.state"

	// Error attributes
	ErrorTypeKey = "error.type"
)

// BatchAttributes creates batch-level span attributes.
func BatchAttributes(id, delivery string, size int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(BatchIDKey, id),
		attribute.String(BatchDeliveryKey, delivery),
		attribute.Int(BatchSizeKey, size),
	}
}

// TaskAttributes creates task span attributes. Empty values are omitted.
func TaskAttributes(id, kind, format, quality string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(TaskIDKey, id)}
	if kind != "" {
		attrs = append(attrs, attribute.String(TaskKindKey, kind))
	}
	if format != "" {
		attrs = append(attrs, attribute.String(TaskFormatKey, format))
	}
	if quality != "" {
		attrs = append(attrs, attribute.String(TaskQualityKey, quality))
	}
	return attrs
}
