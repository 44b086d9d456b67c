// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"context"
	"net/http"

	"github.com/ManuGH/tubemux/internal/admission"
	"github.com/ManuGH/tubemux/internal/api/problem"
	"github.com/ManuGH/tubemux/internal/log"
	"github.com/ManuGH/tubemux/internal/metrics"
)

// Gate decides whether new work may start.
type Gate interface {
	CanAdmit(ctx context.Context) (bool, admission.Reason)
}

// Admission rejects requests with 503 while gate reports saturation.
// A nil gate admits everything.
func Admission(gate Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if gate == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, reason := gate.CanAdmit(r.Context())
			if !ok {
				metrics.RecordReject(string(reason))
				logger := log.WithComponentFromContext(r.Context(), "admission")
				logger.Warn().
					Str(log.FieldEvent, "admission.rejected").
					Str("reason", string(reason)).
					Msg("request rejected by admission gate")
				w.Header().Set("Retry-After", "10")
				problem.Write(w, r, http.StatusServiceUnavailable, "admission/"+string(reason), "Service Busy",
					"The host is saturated. Please retry later.", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
