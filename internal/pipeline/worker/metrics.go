// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ManuGH/tubemux/internal/pipeline/model"
)

var (
	fsmTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubemux_fsm_transitions_total",
			Help: "Task state transitions.",
		},
		[]string{"state_from", "state_to", "kind"},
	)

	acquireDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tubemux_acquire_duration_seconds",
			Help:    "Time from task start until the source streams were opened.",
			Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"kind", "outcome"},
	)

	batchTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubemux_batch_deadline_total",
			Help: "Batch deadlines reached, by whether the response had already started.",
		},
		[]string{"started"},
	)
)

func recordTransition(kind model.Kind, from, to model.State) {
	fsmTransitions.WithLabelValues(string(from), string(to), string(kind)).Inc()
}
