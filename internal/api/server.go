// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api provides the HTTP surface of tubemux.
package api

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/tubemux/internal/api/middleware"
	"github.com/ManuGH/tubemux/internal/config"
)

// Server represents the HTTP API server.
type Server struct {
	deps     Deps
	cfg      atomic.Pointer[config.AppConfig]
	validate *validator.Validate
}

// New builds a server. Middleware settings (origins, rate limit) are read
// once when Handler is called; request limits follow SetConfig.
func New(cfg config.AppConfig, deps Deps) *Server {
	s := &Server{deps: deps, validate: newValidator()}
	s.SetConfig(cfg)
	return s
}

// SetConfig replaces the configuration used by subsequent requests.
func (s *Server) SetConfig(cfg config.AppConfig) {
	s.cfg.Store(&cfg)
}

func (s *Server) config() config.AppConfig { return *s.cfg.Load() }

// Handler returns the configured HTTP handler with all routes and middleware applied.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

func (s *Server) routes() http.Handler {
	cfg := s.config()
	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.Log.Service
	}
	r := middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins:        cfg.Server.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        tracing,
		EnableLogging:         true,
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if s.deps.Health != nil {
		r.Get("/readyz", s.deps.Health.ServeReady)
	}
	if s.deps.Hub != nil {
		r.Method(http.MethodGet, "/events", s.events(cfg))
	}

	r.Route("/audio", func(r chi.Router) {
		s.limited(r, cfg)
		r.Post("/convert", s.handleAudioConvert)
		r.Post("/download", s.handleAudioDownload)
		r.Post("/playlist", s.handlePlaylist)
	})
	r.Route("/video", func(r chi.Router) {
		s.limited(r, cfg)
		r.Get("/info", s.handleVideoInfo)
		r.Post("/info", s.handleVideoInfo)
		r.Post("/convert", s.handleVideoConvert)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w, r)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w, r)
	})
	return r
}

// limited applies the admission gate and the per-client rate limit to the
// work-producing route groups.
func (s *Server) limited(r chi.Router, cfg config.AppConfig) {
	r.Use(middleware.Admission(s.deps.Gate))
	if cfg.RateLimit.Enabled {
		r.Use(middleware.ConversionRateLimit(cfg.RateLimit.RequestsPerMinute))
	}
}
