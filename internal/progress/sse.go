// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package progress

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuGH/tubemux/internal/log"
)

// ServeSSE streams hub events as Server-Sent Events, one
// "data: <json>\n\n" frame per event, with a comment line every heartbeat.
func ServeSSE(h *Hub, heartbeat time.Duration) http.Handler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "sse")
		rc := http.NewResponseController(w)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		id, events := h.Subscribe()
		defer h.Unsubscribe(id)
		logger.Debug().Str(log.FieldListener, id).Msg("sse listener connected")

		if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			logger.Warn().Err(err).Msg("sse: response does not support flushing")
			return
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				logger.Debug().Str(log.FieldListener, id).Msg("sse listener disconnected")
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	})
}
