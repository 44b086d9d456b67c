// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(name string, st Status) Checker {
	return CheckerFunc{Label: name, Fn: func(context.Context) CheckResult { return CheckResult{Status: st} }}
}

func TestReadyWithoutCheckers(t *testing.T) {
	resp := NewManager("v1").Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1", resp.Version)
	assert.Nil(t, resp.Checks)
}

func TestReadyAggregation(t *testing.T) {
	tests := []struct {
		name      string
		checks    []Checker
		wantReady bool
		want      Status
	}{
		{"all healthy", []Checker{fixed("a", StatusHealthy), fixed("b", StatusHealthy)}, true, StatusHealthy},
		{"degraded stays ready", []Checker{fixed("a", StatusDegraded), fixed("b", StatusHealthy)}, true, StatusDegraded},
		{"unhealthy wins", []Checker{fixed("a", StatusUnhealthy), fixed("b", StatusDegraded)}, false, StatusUnhealthy},
		{"unhealthy then degraded", []Checker{fixed("a", StatusDegraded), fixed("b", StatusUnhealthy)}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("")
			for _, c := range tt.checks {
				m.RegisterChecker(c)
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
		})
	}
}

func TestServeReadyStatusCodes(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(fixed("ffmpeg", StatusUnhealthy))

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ready)
	assert.Equal(t, StatusUnhealthy, body.Checks["ffmpeg"].Status)

	ok := NewManager("v1")
	ok.RegisterChecker(fixed("ffmpeg", StatusHealthy))
	rec = httptest.NewRecorder()
	ok.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBinaryChecker(t *testing.T) {
	missing := BinaryChecker{Label: "x", Bin: "tubemux-definitely-missing-binary"}.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, missing.Status)
	assert.NotEmpty(t, missing.Error)

	dir := t.TempDir()
	bin := filepath.Join(dir, "tool")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))
	found := BinaryChecker{Label: "tool", Bin: bin}.Check(context.Background())
	assert.Equal(t, StatusHealthy, found.Status)
	assert.Equal(t, bin, found.Message)
}

func TestDirChecker(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, StatusHealthy, DirChecker{Label: "out", Dir: dir}.Check(context.Background()).Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Equal(t, StatusUnhealthy, DirChecker{Dir: filepath.Join(dir, "nope")}.Check(context.Background()).Status)

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	res := DirChecker{Dir: file}.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "not a directory")
}
