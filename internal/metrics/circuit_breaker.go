// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tubemux_breaker_state",
		Help: "Upstream breaker state (1 for the active state, 0 otherwise)",
	}, []string{"breaker", "state"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_breaker_transitions_total",
		Help: "Upstream breaker state changes",
	}, []string{"breaker", "from", "to"})
)

var breakerStates = [...]string{"closed", "half-open", "open"}

// SetBreakerState marks state as the only active state of breaker.
func SetBreakerState(breaker, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		breakerState.WithLabelValues(breaker, s).Set(v)
	}
}

// RecordBreakerTransition counts a state change and updates the gauge.
func RecordBreakerTransition(breaker, from, to string) {
	breakerTransitions.WithLabelValues(breaker, from, to).Inc()
	SetBreakerState(breaker, to)
}
