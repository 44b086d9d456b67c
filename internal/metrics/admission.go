// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdmissionRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_admission_reject_total",
		Help: "Total number of rejected batch requests, by reason.",
	}, []string{"reason"})

	HostCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tubemux_host_cpu_percent",
		Help: "Last sampled host CPU utilisation percent.",
	})
)

// RecordReject increments the rejection counter.
func RecordReject(reason string) {
	AdmissionRejectTotal.WithLabelValues(reason).Inc()
}
