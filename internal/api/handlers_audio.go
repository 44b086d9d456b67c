// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/tubemux/internal/log"
	"github.com/ManuGH/tubemux/internal/pipeline/limiter"
	"github.com/ManuGH/tubemux/internal/pipeline/model"
	"github.com/ManuGH/tubemux/internal/pipeline/worker"
	"github.com/ManuGH/tubemux/internal/source"
)

// downloadResponse summarizes a save-to-disk batch.
type downloadResponse struct {
	CPUs           int                `json:"cpus"`
	Concurrency    int                `json:"concurrency"`
	TotalRequested int                `json:"totalRequested"`
	Processed      int                `json:"processed"`
	Results        []model.ItemResult `json:"results"`
}

// playlistResponse lists the videos of a playlist.
type playlistResponse struct {
	Info  playlistInfo `json:"info"`
	Total int          `json:"total"`
	URLs  []string     `json:"urls"`
}

type playlistInfo struct {
	ID      string                 `json:"id"`
	Entries []source.PlaylistEntry `json:"entries"`
}

// handleAudioConvert streams one converted file, or a ZIP for several urls.
func (s *Server) handleAudioConvert(w http.ResponseWriter, r *http.Request) {
	s.convert(w, r, model.KindAudio)
}

// handleVideoConvert streams one muxed video, or a ZIP for several urls.
func (s *Server) handleVideoConvert(w http.ResponseWriter, r *http.Request) {
	s.convert(w, r, model.KindVideo)
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request, kind model.Kind) {
	var req convertRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.batch(kind, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b.Delivery = model.DeliveryStream
	b.Response = w

	if _, err := s.deps.Converter.Run(r.Context(), b); err != nil {
		writeError(w, r, err)
	}
}

// handleAudioDownload converts into the output directory and answers with
// a JSON summary.
func (s *Server) handleAudioDownload(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.batch(model.KindAudio, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b.Delivery = model.DeliverySave
	b.OutputDir = s.config().OutputDir

	res, err := s.deps.Converter.Run(r.Context(), b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, downloadResponse{
		CPUs:           limiter.LogicalCPUs(),
		Concurrency:    res.Concurrency,
		TotalRequested: len(req.URLs),
		Processed:      len(res.Items),
		Results:        res.Items,
	})
}

// handlePlaylist expands a playlist url into its video urls.
func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pl, err := s.deps.Playlists.Expand(r.Context(), req.URL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	urls := pl.URLs()
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldEvent, "playlist.expanded").
		Str("playlist_id", pl.ID).
		Int("items", len(urls)).
		Msg("playlist expanded")
	writeJSON(w, http.StatusOK, playlistResponse{
		Info:  playlistInfo{ID: pl.ID, Entries: pl.Entries},
		Total: len(urls),
		URLs:  urls,
	})
}

func (s *Server) batch(kind model.Kind, req convertRequest) (worker.Batch, error) {
	if err := s.batchLimit(req.URLs); err != nil {
		return worker.Batch{}, err
	}
	format, err := formatOrDefault(kind, req.Format)
	if err != nil {
		return worker.Batch{}, err
	}
	quality := ""
	if kind == model.KindVideo {
		if quality, err = model.ParseQuality(req.Quality); err != nil {
			return worker.Batch{}, err
		}
	}
	return worker.Batch{
		Identifiers: req.URLs,
		Kind:        kind,
		Format:      format,
		Quality:     quality,
		Concurrency: req.Concurrency,
	}, nil
}
