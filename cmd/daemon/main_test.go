// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigValidate(t *testing.T) {
	var stdout, stderr bytes.Buffer
	path := writeConfig(t, "log:\n  level: debug\n")
	assert.Equal(t, 0, configCLI([]string{"validate", "-f", path}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "is valid")

	stdout.Reset()
	bad := writeConfig(t, "pipeline:\n  maxItems: -1\n")
	assert.Equal(t, 1, configCLI([]string{"validate", "--file", bad}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "maxItems")
}

func TestConfigDumpEffective(t *testing.T) {
	t.Setenv("TUBEMUX_REDIS_ADDR", "user:secret@redis:6379")
	path := writeConfig(t, "pipeline:\n  concurrency: 3\n")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, configCLI([]string{"dump", "--effective", "-f", path, "--format", "json"}, &stdout, &stderr), stderr.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	pipeline := out["Pipeline"].(map[string]any)
	assert.EqualValues(t, 3, pipeline["Concurrency"])
	assert.Equal(t, "***@redis:6379", out["Progress"].(map[string]any)["RedisAddr"])
	assert.NotContains(t, stdout.String(), "secret")
}

func TestConfigDumpRequiresEffective(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, configCLI([]string{"dump"}, &stdout, &stderr))
	assert.Equal(t, 2, configCLI([]string{"bogus"}, &stdout, &stderr))
}

func TestHealthcheck(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	assert.Equal(t, 0, healthcheck(ok.URL, time.Second))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	assert.Equal(t, 1, healthcheck(down.URL, time.Second))
}

func TestResolveDefaultConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TUBEMUX_DATA", dir)
	assert.Empty(t, resolveDefaultConfigPath())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{}\n"), 0o600))
	assert.Equal(t, filepath.Join(dir, "config.yaml"), resolveDefaultConfigPath())
}
