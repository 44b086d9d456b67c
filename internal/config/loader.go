// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads and hot-reloads the daemon configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader resolves configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a loader. configPath may be empty for ENV-only setups.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Path returns the watched config file path.
func (l *Loader) Path() string { return l.configPath }

// Load returns a validated configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	mergeEnv(&cfg)
	cfg.Version = l.version

	if abs, err := filepath.Abs(cfg.OutputDir); err == nil {
		cfg.OutputDir = abs
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:        ":4000",
			MaxConnections:    512,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Log:       LogConfig{Level: "info", Service: "tubemux"},
		OutputDir: "downloads",
		FFmpeg: FFmpegConfig{
			Bin:          "ffmpeg",
			KillGrace:    2 * time.Second,
			AudioBitrate: "192k",
			VideoCRF:     24,
			VideoPreset:  "ultrafast",
		},
		Extractor: ExtractorConfig{
			Bin:               "yt-dlp",
			RequestsPerSecond: 5,
			Burst:             5,
			ProbeTimeout:      60 * time.Second,
			PlaylistTimeout:   60 * time.Second,
			BreakerThreshold:  5,
			BreakerReset:      30 * time.Second,
			MetadataCacheTTL:  10 * time.Minute,
		},
		Pipeline: PipelineConfig{
			TaskTimeout:  10 * time.Minute,
			BatchTimeout: 30 * time.Minute,
			MaxItems:     200,
			Retry: RetryConfig{
				MaxAttempts: 4,
				MinDelay:    2 * time.Second,
			},
		},
		Progress: ProgressConfig{
			Buffer:       64,
			Heartbeat:    15 * time.Second,
			RedisChannel: "tubemux:progress",
		},
		Admission: AdmissionConfig{SampleInterval: 2 * time.Second},
		RateLimit: RateLimitConfig{Enabled: true, RequestsPerMinute: 60},
		Telemetry: TelemetryConfig{Exporter: "grpc", Endpoint: "localhost:4317", SamplingRate: 1.0, Environment: "production"},
	}
}

// loadFile decodes a YAML file over cfg. Unknown fields and multiple
// documents are rejected.
func loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func mergeEnv(cfg *AppConfig) {
	cfg.Server.ListenAddr = ParseString("TUBEMUX_LISTEN", cfg.Server.ListenAddr)
	if port := ParseString("PORT", ""); port != "" && os.Getenv("TUBEMUX_LISTEN") == "" {
		cfg.Server.ListenAddr = ":" + port
	}
	cfg.Server.AllowedOrigins = ParseStringList("ORIGIN", cfg.Server.AllowedOrigins)
	cfg.Server.AllowedOrigins = ParseStringList("TUBEMUX_ORIGINS", cfg.Server.AllowedOrigins)
	cfg.Server.MaxConnections = ParseInt("TUBEMUX_MAX_CONNECTIONS", cfg.Server.MaxConnections)

	cfg.Log.Level = ParseString("LOG_LEVEL", cfg.Log.Level)

	cfg.OutputDir = ParseString("PATH_SAVE", cfg.OutputDir)
	cfg.OutputDir = ParseString("TUBEMUX_OUTPUT_DIR", cfg.OutputDir)

	cfg.FFmpeg.Bin = ParseString("TUBEMUX_FFMPEG_BIN", cfg.FFmpeg.Bin)
	cfg.FFmpeg.AudioBitrate = ParseString("TUBEMUX_AUDIO_BITRATE", cfg.FFmpeg.AudioBitrate)

	cfg.Extractor.Bin = ParseString("TUBEMUX_YTDLP_BIN", cfg.Extractor.Bin)
	cfg.Extractor.CookiesFile = ParseString("TUBEMUX_YTDLP_COOKIES", cfg.Extractor.CookiesFile)
	cfg.Extractor.RequestsPerSecond = ParseFloat("TUBEMUX_YTDLP_RPS", cfg.Extractor.RequestsPerSecond)
	cfg.Extractor.MetadataCacheTTL = ParseDuration("TUBEMUX_METADATA_CACHE_TTL", cfg.Extractor.MetadataCacheTTL)

	cfg.Pipeline.Concurrency = ParseInt("TUBEMUX_CONCURRENCY", cfg.Pipeline.Concurrency)
	cfg.Pipeline.TaskTimeout = ParseDuration("TUBEMUX_TASK_TIMEOUT", cfg.Pipeline.TaskTimeout)
	cfg.Pipeline.BatchTimeout = ParseDuration("TUBEMUX_BATCH_TIMEOUT", cfg.Pipeline.BatchTimeout)
	cfg.Pipeline.Retry.MaxAttempts = ParseInt("TUBEMUX_RETRY_ATTEMPTS", cfg.Pipeline.Retry.MaxAttempts)
	cfg.Pipeline.Retry.MinDelay = ParseDuration("TUBEMUX_RETRY_DELAY", cfg.Pipeline.Retry.MinDelay)
	cfg.Pipeline.Retry.VideoAcquisition = ParseBool("TUBEMUX_RETRY_VIDEO", cfg.Pipeline.Retry.VideoAcquisition)

	cfg.Progress.RedisAddr = ParseString("TUBEMUX_REDIS_ADDR", cfg.Progress.RedisAddr)

	cfg.Admission.MaxCPUPercent = ParseFloat("TUBEMUX_MAX_CPU_PERCENT", cfg.Admission.MaxCPUPercent)

	cfg.RateLimit.Enabled = ParseBool("TUBEMUX_RATELIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMinute = ParseInt("TUBEMUX_RATELIMIT_RPM", cfg.RateLimit.RequestsPerMinute)

	cfg.Telemetry.Enabled = ParseBool("TUBEMUX_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString("TUBEMUX_OTEL_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString("TUBEMUX_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat("TUBEMUX_OTEL_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
