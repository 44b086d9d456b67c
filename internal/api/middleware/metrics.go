// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "tubemux_http_request_duration_seconds",
		Help: "HTTP request latencies in seconds, including streamed bodies.",
		// Conversions stream for minutes.
		Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300, 900},
	}, []string{"method", "path", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tubemux_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tubemux_http_response_size_bytes",
		Help:    "HTTP response sizes in bytes",
		Buckets: prometheus.ExponentialBuckets(100, 10, 8),
	}, []string{"method", "path", "status"})
)

// Metrics records request duration, in-flight requests and response sizes
// labelled by route pattern.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			// Preserves Flusher so streamed bodies keep flushing.
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			// Record even when the handler aborts the connection.
			defer func() {
				path := "unmatched"
				if rc := chi.RouteContext(r.Context()); rc != nil {
					if pattern := rc.RoutePattern(); pattern != "" {
						path = pattern
					}
				}
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				code := strconv.Itoa(status)
				httpRequestDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
				if written := ww.BytesWritten(); written > 0 {
					httpResponseSize.WithLabelValues(r.Method, path, code).Observe(float64(written))
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
