// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/tubemux/internal/api/problem"
	"github.com/ManuGH/tubemux/internal/log"
	"github.com/ManuGH/tubemux/internal/pipeline/model"
	"github.com/ManuGH/tubemux/internal/pipeline/worker"
)

var reasonStatus = map[string]int{
	model.ReasonValidation:     http.StatusBadRequest,
	model.ReasonNotFound:       http.StatusNotFound,
	model.ReasonFormatNotFound: http.StatusUnprocessableEntity,
	model.ReasonAcquisition:    http.StatusBadGateway,
	model.ReasonTranscode:      http.StatusInternalServerError,
	model.ReasonTimeout:        http.StatusGatewayTimeout,
	model.ReasonInternal:       http.StatusInternalServerError,
}

var reasonTitle = map[string]string{
	model.ReasonValidation:     "Invalid Request",
	model.ReasonNotFound:       "Source Not Found",
	model.ReasonFormatNotFound: "Format Not Found",
	model.ReasonAcquisition:    "Source Unavailable",
	model.ReasonTranscode:      "Conversion Failed",
	model.ReasonTimeout:        "Timed Out",
	model.ReasonInternal:       "Internal Server Error",
}

// writeError answers err as a problem document.
//
// A cancelled request gets no response. An error after the first body
// byte aborts the connection so the client sees a truncated transfer.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, worker.ErrResponseCommitted) {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).
			Str(log.FieldEvent, "response.aborted").
			Msg("aborting partially written response")
		panic(http.ErrAbortHandler)
	}

	reason := model.Classify(err)
	if reason == model.ReasonCancelled {
		return
	}
	status, ok := reasonStatus[reason]
	if !ok {
		status = http.StatusInternalServerError
	}

	var extra map[string]any
	var fe *model.FormatNotFoundError
	var te *model.TranscodeError
	switch {
	case errors.As(err, &fe):
		extra = map[string]any{"available": fe.Available}
	case errors.As(err, &te) && len(te.Diagnostics) > 0:
		extra = map[string]any{"diagnostics": te.Diagnostics}
	}

	detail := err.Error()
	if reason == model.ReasonInternal {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("unclassified request error")
		detail = "An unexpected error occurred."
	}
	problem.Write(w, r, status, "tubemux/"+reason, reasonTitle[reason], detail, extra)
}

func writeNotFound(w http.ResponseWriter, r *http.Request) {
	problem.Write(w, r, http.StatusNotFound, "not_found", "Not Found", "no route for "+r.URL.Path, nil)
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem.Write(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed", "", nil)
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
