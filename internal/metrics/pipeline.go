// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the tubemux pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No per-request or per-source labels: cardinality stays bounded.

var (
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_tasks_total",
		Help: "Total number of finished pipeline tasks, by kind and result reason.",
	}, []string{"kind", "result"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tubemux_task_duration_seconds",
		Help:    "Wall time from acquisition start to terminal state.",
		Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1200},
	}, []string{"kind"})

	TasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tubemux_tasks_in_flight",
		Help: "Number of tasks currently holding a limiter slot.",
	})

	TasksQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tubemux_tasks_queued",
		Help: "Number of tasks waiting for a limiter slot.",
	})

	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_batches_total",
		Help: "Total number of batches, by kind, delivery and outcome.",
	}, []string{"kind", "delivery", "outcome"})

	RetryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_retry_attempts_total",
		Help: "Acquisition attempts, by result (ok, retry, exhausted, fatal).",
	}, []string{"result"})

	ArchiveEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_archive_entries_total",
		Help: "Archive slots, by result (written, aborted).",
	}, []string{"result"})
)

// RecordTask records a finished task. result is "ok" or an error reason.
func RecordTask(kind, result string, seconds float64) {
	if result == "" {
		result = "ok"
	}
	TasksTotal.WithLabelValues(kind, result).Inc()
	if seconds > 0 {
		TaskDuration.WithLabelValues(kind).Observe(seconds)
	}
}

// RecordBatch records a batch outcome ("ok", "partial", "failed", "timeout").
func RecordBatch(kind, delivery, outcome string) {
	BatchesTotal.WithLabelValues(kind, delivery, outcome).Inc()
}

// IncRetryAttempt records the outcome of one acquisition attempt.
func IncRetryAttempt(result string) {
	RetryAttemptsTotal.WithLabelValues(result).Inc()
}

// IncArchiveEntry records a closed archive slot.
func IncArchiveEntry(result string) {
	ArchiveEntriesTotal.WithLabelValues(result).Inc()
}
