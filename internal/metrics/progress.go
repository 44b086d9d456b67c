// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProgressListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tubemux_progress_listeners",
		Help: "Current number of subscribed progress listeners",
	})

	ProgressEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_progress_events_total",
		Help: "Progress events broadcast, by type",
	}, []string{"type"})

	ProgressDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_progress_dropped_total",
		Help: "Progress events dropped for a listener, by reason",
	}, []string{"reason"})

	ProgressRelayTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_progress_relay_total",
		Help: "Progress events relayed across instances, by direction and result",
	}, []string{"direction", "result"})
)

// IncProgressDrop records a dropped event.
func IncProgressDrop(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	ProgressDroppedTotal.WithLabelValues(reason).Inc()
}

// IncProgressRelay records a relay publish or receive.
func IncProgressRelay(direction, result string) {
	ProgressRelayTotal.WithLabelValues(direction, result).Inc()
}
