// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tubemux/internal/config"
	"github.com/ManuGH/tubemux/internal/pipeline/model"
)

func loadHolder(t *testing.T, body string) (*config.Holder, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	loader := config.NewLoader(path, "test")
	cfg, err := loader.Load()
	require.NoError(t, err)
	return config.NewHolder(cfg, loader), path
}

func TestBootstrapCreatesOutputDirAndServesHealth(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "downloads")
	holder, _ := loadHolder(t, fmt.Sprintf("outputDir: %q\npipeline:\n  concurrency: 3\n", out))

	rt, err := Bootstrap(context.Background(), holder)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Nil(t, rt.Relay)
	assert.Equal(t, 3, rt.Orchestrator.Capacity())

	rec := httptest.NewRecorder()
	rt.API.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 3, body["capacity"])
}

func TestBootstrapServesReadiness(t *testing.T) {
	dir := t.TempDir()
	ffmpegBin := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(ffmpegBin, []byte("#!/bin/sh\n"), 0o755))
	mr := miniredis.RunT(t)

	holder, _ := loadHolder(t, fmt.Sprintf(
		"outputDir: %q\nffmpeg:\n  bin: %q\nextractor:\n  bin: %q\nprogress:\n  redisAddr: %q\n",
		filepath.Join(dir, "out"), ffmpegBin, filepath.Join(dir, "missing-yt-dlp"), mr.Addr()))

	rt, err := Bootstrap(context.Background(), holder)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	rec := httptest.NewRecorder()
	rt.API.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Ready  bool                               `json:"ready"`
		Checks map[string]struct{ Status string } `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ready)
	assert.Equal(t, "healthy", body.Checks["ffmpeg"].Status)
	assert.Equal(t, "unhealthy", body.Checks["yt-dlp"].Status)
	assert.Equal(t, "healthy", body.Checks["output_dir"].Status)
	assert.Equal(t, "healthy", body.Checks["redis"].Status)
	assert.Equal(t, "healthy", body.Checks["extractor_breaker"].Status)
}

func TestBootstrapWithRedisRelay(t *testing.T) {
	mr := miniredis.RunT(t)
	out := t.TempDir()
	holder, _ := loadHolder(t, fmt.Sprintf("outputDir: %q\nprogress:\n  redisAddr: %q\n", out, mr.Addr()))

	rt, err := Bootstrap(context.Background(), holder)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	assert.NotNil(t, rt.Relay)
}

func TestBootstrapFailsOnUnreachableRedis(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	holder, _ := loadHolder(t, fmt.Sprintf("outputDir: %q\nprogress:\n  redisAddr: %q\n", t.TempDir(), addr))
	_, err = Bootstrap(context.Background(), holder)
	require.ErrorContains(t, err, "redis connection failed")
}

func TestReloadAppliesPipelineSettings(t *testing.T) {
	out := t.TempDir()
	holder, path := loadHolder(t, fmt.Sprintf("outputDir: %q\n", out))

	rt, err := Bootstrap(context.Background(), holder)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	require.Equal(t, 10*time.Minute, rt.Orchestrator.Config().TaskTimeout)

	next := fmt.Sprintf("outputDir: %q\npipeline:\n  taskTimeout: 90s\n  retry:\n    videoAcquisition: true\nffmpeg:\n  audioBitrate: 320k\n", out)
	require.NoError(t, os.WriteFile(path, []byte(next), 0o600))
	require.NoError(t, holder.Reload())

	cfg := rt.Orchestrator.Config()
	assert.Equal(t, 90*time.Second, cfg.TaskTimeout)
	assert.True(t, cfg.RetryVideo)
	assert.Equal(t, "320k", cfg.Encode.AudioBitrate)
}

func TestWorkerConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Pipeline.Retry.MaxAttempts = 2
	cfg.Pipeline.Retry.MinDelay = time.Second

	wc := WorkerConfig(cfg)
	assert.Equal(t, 2, wc.Retry.MaxAttempts)
	assert.Equal(t, time.Second, wc.Retry.MinDelay)
	assert.Equal(t, cfg.FFmpeg.VideoPreset, wc.Encode.VideoPreset)
	assert.Equal(t, cfg.Pipeline.BatchTimeout, wc.BatchTimeout)
}

func TestUpstreamFailure(t *testing.T) {
	assert.False(t, upstreamFailure(model.ErrNotFound))
	assert.False(t, upstreamFailure(&model.ValidationError{Reason: "x"}))
	assert.False(t, upstreamFailure(context.Canceled))
	assert.True(t, upstreamFailure(fmt.Errorf("yt-dlp exited 1")))
}
