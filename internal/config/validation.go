// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Validate rejects configurations the daemon cannot run with.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if cfg.Server.ListenAddr == "" {
		add("server.listenAddr must not be empty")
	}
	if cfg.Server.MaxConnections < 0 {
		add("server.maxConnections must be >= 0, got %d", cfg.Server.MaxConnections)
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		add("log.level %q: %v", cfg.Log.Level, err)
	}
	if cfg.OutputDir == "" {
		add("outputDir must not be empty")
	}
	if cfg.FFmpeg.Bin == "" {
		add("ffmpeg.bin must not be empty")
	}
	if cfg.FFmpeg.VideoCRF < 0 || cfg.FFmpeg.VideoCRF > 51 {
		add("ffmpeg.videoCrf must be within 0..51, got %d", cfg.FFmpeg.VideoCRF)
	}
	if cfg.Extractor.Bin == "" {
		add("extractor.bin must not be empty")
	}
	if cfg.Extractor.RequestsPerSecond <= 0 {
		add("extractor.requestsPerSecond must be > 0")
	}
	if cfg.Extractor.MetadataCacheTTL < 0 {
		add("extractor.metadataCacheTtl must be >= 0")
	}
	if cfg.Pipeline.TaskTimeout <= 0 {
		add("pipeline.taskTimeout must be > 0")
	}
	if cfg.Pipeline.BatchTimeout <= 0 {
		add("pipeline.batchTimeout must be > 0")
	}
	if cfg.Pipeline.MaxItems <= 0 {
		add("pipeline.maxItems must be > 0")
	}
	if cfg.Pipeline.Retry.MaxAttempts < 1 {
		add("pipeline.retry.maxAttempts must be >= 1, got %d", cfg.Pipeline.Retry.MaxAttempts)
	}
	if cfg.Pipeline.Retry.MinDelay < 0 {
		add("pipeline.retry.minDelay must be >= 0")
	}
	if cfg.Progress.Buffer < 1 {
		add("progress.buffer must be >= 1")
	}
	if cfg.Admission.MaxCPUPercent < 0 || cfg.Admission.MaxCPUPercent > 100 {
		add("admission.maxCpuPercent must be within 0..100")
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerMinute <= 0 {
		add("rateLimit.requestsPerMinute must be > 0 when enabled")
	}
	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			add("telemetry.exporter must be grpc or http, got %q", cfg.Telemetry.Exporter)
		}
	}
	return errors.Join(errs...)
}
