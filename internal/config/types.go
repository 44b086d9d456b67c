// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	OutputDir string          `yaml:"outputDir"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Progress  ProgressConfig  `yaml:"progress"`
	Admission AdmissionConfig `yaml:"admission"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	ListenAddr        string        `yaml:"listenAddr"`
	AllowedOrigins    []string      `yaml:"allowedOrigins"`
	MaxConnections    int           `yaml:"maxConnections"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

type FFmpegConfig struct {
	Bin          string        `yaml:"bin"`
	KillGrace    time.Duration `yaml:"killGrace"`
	AudioBitrate string        `yaml:"audioBitrate"`
	VideoCRF     int           `yaml:"videoCrf"`
	VideoPreset  string        `yaml:"videoPreset"`
}

type ExtractorConfig struct {
	Bin               string        `yaml:"bin"`
	CookiesFile       string        `yaml:"cookiesFile"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	ProbeTimeout      time.Duration `yaml:"probeTimeout"`
	PlaylistTimeout   time.Duration `yaml:"playlistTimeout"`
	BreakerThreshold  int           `yaml:"breakerThreshold"`
	BreakerReset      time.Duration `yaml:"breakerReset"`
	// MetadataCacheTTL of 0 disables the metadata cache.
	MetadataCacheTTL time.Duration `yaml:"metadataCacheTtl"`
}

type PipelineConfig struct {
	// Concurrency <= 0 means logical CPUs x 2.
	Concurrency  int           `yaml:"concurrency"`
	TaskTimeout  time.Duration `yaml:"taskTimeout"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	MaxItems     int           `yaml:"maxItems"`
	Retry        RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	MinDelay    time.Duration `yaml:"minDelay"`
	// VideoAcquisition enables retries for the dual-stream flow.
	VideoAcquisition bool `yaml:"videoAcquisition"`
}

type ProgressConfig struct {
	Buffer       int           `yaml:"buffer"`
	Heartbeat    time.Duration `yaml:"heartbeat"`
	RedisAddr    string        `yaml:"redisAddr"`
	RedisChannel string        `yaml:"redisChannel"`
}

type AdmissionConfig struct {
	// MaxCPUPercent of 0 disables the CPU gate.
	MaxCPUPercent  float64       `yaml:"maxCpuPercent"`
	SampleInterval time.Duration `yaml:"sampleInterval"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}
