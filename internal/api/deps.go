// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"

	"github.com/ManuGH/tubemux/internal/api/middleware"
	"github.com/ManuGH/tubemux/internal/health"
	"github.com/ManuGH/tubemux/internal/pipeline/model"
	"github.com/ManuGH/tubemux/internal/pipeline/worker"
	"github.com/ManuGH/tubemux/internal/progress"
	"github.com/ManuGH/tubemux/internal/source"
)

// Converter runs conversion batches.
type Converter interface {
	Run(ctx context.Context, b worker.Batch) (*model.BatchResult, error)
	Capacity() int
}

// Describer returns caller-facing metadata for one source.
type Describer interface {
	Describe(ctx context.Context, raw string) (*source.Metadata, error)
}

// PlaylistExpander lists the videos of a playlist.
type PlaylistExpander interface {
	Expand(ctx context.Context, raw string) (*source.Playlist, error)
}

// Deps groups the collaborators of the HTTP server. Hub, Gate and Health
// may be nil.
type Deps struct {
	Converter Converter
	Describer Describer
	Playlists PlaylistExpander
	Hub       *progress.Hub
	Gate      middleware.Gate
	Health    *health.Manager
}
