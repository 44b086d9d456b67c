// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/tubemux/internal/source"
)

const maxDescribeParallel = 4

// infoResponse lists metadata in request order.
type infoResponse struct {
	Format string            `json:"format"`
	URLs   []source.Metadata `json:"urls"`
}

// handleVideoInfo returns title, description, thumbnail and qualities for
// each url. GET accepts repeated "url" query parameters or a JSON body.
func (s *Server) handleVideoInfo(w http.ResponseWriter, r *http.Request) {
	var req infoRequest
	q := r.URL.Query()
	if r.Method == http.MethodGet && len(q["url"]) > 0 {
		req = infoRequest{URLs: q["url"], Format: q.Get("format")}
		if err := s.check(&req); err != nil {
			writeError(w, r, err)
			return
		}
	} else if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.batchLimit(req.URLs); err != nil {
		writeError(w, r, err)
		return
	}
	format := req.Format
	if format == "" {
		format = "mp4"
	}

	out := make([]source.Metadata, len(req.URLs))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(maxDescribeParallel)
	for i, raw := range req.URLs {
		g.Go(func() error {
			md, err := s.deps.Describer.Describe(ctx, raw)
			if err != nil {
				return err
			}
			out[i] = *md
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, infoResponse{Format: format, URLs: out})
}
