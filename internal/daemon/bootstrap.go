// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon provides the core daemon bootstrapping and lifecycle management.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/tubemux/internal/admission"
	"github.com/ManuGH/tubemux/internal/api"
	"github.com/ManuGH/tubemux/internal/cache"
	"github.com/ManuGH/tubemux/internal/config"
	"github.com/ManuGH/tubemux/internal/fsutil"
	"github.com/ManuGH/tubemux/internal/health"
	"github.com/ManuGH/tubemux/internal/log"
	"github.com/ManuGH/tubemux/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/tubemux/internal/pipeline/limiter"
	"github.com/ManuGH/tubemux/internal/pipeline/model"
	"github.com/ManuGH/tubemux/internal/pipeline/worker"
	"github.com/ManuGH/tubemux/internal/progress"
	"github.com/ManuGH/tubemux/internal/resilience"
	"github.com/ManuGH/tubemux/internal/source"
	"github.com/ManuGH/tubemux/internal/telemetry"
)

// Runtime holds the wired components of one daemon process.
type Runtime struct {
	Holder       *config.Holder
	Telemetry    *telemetry.Provider
	Hub          *progress.Hub
	Relay        *progress.RedisRelay
	Admission    *admission.Monitor
	Orchestrator *worker.Orchestrator
	API          *api.Server
	Health       *health.Manager

	redis    *redis.Client
	memCache *cache.Memory
	logger   zerolog.Logger
}

// Bootstrap builds every component from the holder's current config.
// The output directory is created when absent.
func Bootstrap(ctx context.Context, holder *config.Holder) (*Runtime, error) {
	cfg := holder.Get()
	rt := &Runtime{Holder: holder, logger: log.WithComponent("daemon")}

	if err := fsutil.EnsureDir(cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("prepare output dir: %w", err)
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		rt.logger.Warn().Err(err).Msg("Telemetry initialization failed, continuing without tracing")
		tp = nil
	}
	rt.Telemetry = tp

	rt.Hub = progress.NewHub(cfg.Progress.Buffer)

	var metaCache cache.Cache
	if cfg.Progress.RedisAddr != "" {
		client, err := progress.NewRedisClient(ctx, progress.RedisRelayConfig{Addr: cfg.Progress.RedisAddr})
		if err != nil {
			_ = rt.Close(ctx)
			return nil, err
		}
		rt.redis = client
		rt.Relay = progress.NewRedisRelay(client, cfg.Progress.RedisChannel, rt.Hub)
		metaCache = cache.NewRedis(client, cfg.Log.Service+":")
	} else {
		rt.memCache = cache.NewMemory(cfg.Extractor.MetadataCacheTTL)
		metaCache = rt.memCache
	}

	extractor := source.NewYTDLP(source.YTDLPConfig{
		Bin:               cfg.Extractor.Bin,
		CookiesFile:       cfg.Extractor.CookiesFile,
		RequestsPerSecond: cfg.Extractor.RequestsPerSecond,
		Burst:             cfg.Extractor.Burst,
		ProbeTimeout:      cfg.Extractor.ProbeTimeout,
	})
	breaker := resilience.NewCircuitBreaker("extractor", cfg.Extractor.BreakerThreshold, cfg.Extractor.BreakerReset,
		resilience.WithFailurePredicate(upstreamFailure))
	resolver := source.NewResolver(extractor, breaker)
	if cfg.Extractor.MetadataCacheTTL > 0 {
		resolver.CacheMetadata(metaCache, cfg.Extractor.MetadataCacheTTL)
	}

	lim := limiter.New(cfg.Pipeline.Concurrency)
	runner := ffmpeg.NewRunner(cfg.FFmpeg.Bin, cfg.FFmpeg.KillGrace)
	rt.Orchestrator = worker.New(resolver, runner, lim, rt.Hub, WorkerConfig(cfg))

	rt.Admission = admission.NewMonitor(cfg.Admission.MaxCPUPercent, 0)

	rt.Health = rt.readiness(cfg, breaker)

	rt.API = api.New(cfg, api.Deps{
		Converter: rt.Orchestrator,
		Describer: resolver,
		Playlists: source.NewPlaylists(cfg.Extractor.PlaylistTimeout),
		Hub:       rt.Hub,
		Gate:      rt.Admission,
		Health:    rt.Health,
	})

	holder.OnReload(rt.apply)

	rt.logger.Info().
		Str("output_dir", cfg.OutputDir).
		Int("concurrency", lim.Capacity()).
		Bool("relay", rt.Relay != nil).
		Bool("tracing", cfg.Telemetry.Enabled).
		Msg("runtime assembled")
	return rt, nil
}

// readiness registers the probes behind /readyz. Missing binaries or an
// unwritable output dir fail readiness; an open breaker or CPU pressure
// only degrade it.
func (rt *Runtime) readiness(cfg config.AppConfig, breaker *resilience.CircuitBreaker) *health.Manager {
	m := health.NewManager(cfg.Version)
	m.RegisterChecker(health.BinaryChecker{Label: "ffmpeg", Bin: cfg.FFmpeg.Bin})
	m.RegisterChecker(health.BinaryChecker{Label: "yt-dlp", Bin: cfg.Extractor.Bin})
	m.RegisterChecker(health.DirChecker{Label: "output_dir", Dir: cfg.OutputDir})
	m.RegisterChecker(health.CheckerFunc{Label: "extractor_breaker", Fn: func(context.Context) health.CheckResult {
		if st := breaker.State(); st != resilience.StateClosed {
			return health.CheckResult{Status: health.StatusDegraded, Message: string(st)}
		}
		return health.CheckResult{Status: health.StatusHealthy}
	}})
	m.RegisterChecker(health.CheckerFunc{Label: "admission", Fn: func(ctx context.Context) health.CheckResult {
		if ok, reason := rt.Admission.CanAdmit(ctx); !ok {
			return health.CheckResult{Status: health.StatusDegraded, Message: string(reason)}
		}
		return health.CheckResult{Status: health.StatusHealthy}
	}})
	if rt.redis != nil {
		client := rt.redis
		m.RegisterChecker(health.CheckerFunc{Label: "redis", Fn: func(ctx context.Context) health.CheckResult {
			if err := client.Ping(ctx).Err(); err != nil {
				return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
			}
			return health.CheckResult{Status: health.StatusHealthy}
		}})
	}
	return m
}

// apply pushes reloadable settings into live components. Listener,
// origins and limiter capacity need a restart.
func (rt *Runtime) apply(old, next config.AppConfig) {
	if old.Log.Level != next.Log.Level {
		if err := log.SetLevel(next.Log.Level); err != nil {
			rt.logger.Warn().Err(err).Str("level", next.Log.Level).Msg("invalid log level on reload")
		}
	}
	rt.Orchestrator.SetConfig(WorkerConfig(next))
	rt.Admission.SetThreshold(next.Admission.MaxCPUPercent)
	rt.API.SetConfig(next)

	if old.Server.ListenAddr != next.Server.ListenAddr || old.Pipeline.Concurrency != next.Pipeline.Concurrency {
		rt.logger.Warn().
			Str(log.FieldEvent, "config.restart_required").
			Msg("listen address or concurrency changed; restart to apply")
	}
}

// Close releases clients and caches.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.memCache != nil {
		errs = append(errs, rt.memCache.Close())
	}
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	if rt.Hub != nil {
		rt.Hub.Close()
	}
	if rt.Telemetry != nil {
		errs = append(errs, rt.Telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// WorkerConfig maps the pipeline section onto orchestrator settings.
func WorkerConfig(cfg config.AppConfig) worker.Config {
	return worker.Config{
		TaskTimeout:  cfg.Pipeline.TaskTimeout,
		BatchTimeout: cfg.Pipeline.BatchTimeout,
		Retry: resilience.RetryPolicy{
			MaxAttempts: cfg.Pipeline.Retry.MaxAttempts,
			MinDelay:    cfg.Pipeline.Retry.MinDelay,
		},
		RetryVideo: cfg.Pipeline.Retry.VideoAcquisition,
		Encode: ffmpeg.EncodeOptions{
			AudioBitrate: cfg.FFmpeg.AudioBitrate,
			VideoCRF:     cfg.FFmpeg.VideoCRF,
			VideoPreset:  cfg.FFmpeg.VideoPreset,
		},
	}
}

// upstreamFailure counts only errors that say something about the
// extractor's health.
func upstreamFailure(err error) bool {
	switch model.Classify(err) {
	case "", model.ReasonValidation, model.ReasonNotFound, model.ReasonFormatNotFound, model.ReasonCancelled:
		return false
	}
	return true
}
