// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/tubemux/internal/config"
	"github.com/ManuGH/tubemux/internal/progress"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.config().Version,
		"capacity": s.deps.Converter.Capacity(),
	})
}

func (s *Server) events(cfg config.AppConfig) http.Handler {
	return progress.ServeSSE(s.deps.Hub, cfg.Progress.Heartbeat)
}
