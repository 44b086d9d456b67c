// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Canción Número Uno", "Cancion Numero Uno"},
		{`AC/DC: "Live" <Wembley>?*|`, "ACDC Live Wembley"},
		{"  spaced \t\n out  ", "spaced out"},
		{"...", "untitled"},
		{"", "untitled"},
		{"Ñandú", "Nandu"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeFilenameBoundsLength(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("é", 400))
	assert.LessOrEqual(t, len(got), maxNameBytes)
	assert.Equal(t, strings.Repeat("e", maxNameBytes), got)
}

func TestReserveUniqueSuffixes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("x"), 0o644))

	first, err := ReserveUnique(dir, "song", ".mp3")
	require.NoError(t, err)
	assert.Equal(t, "song (1).mp3", filepath.Base(first))

	second, err := ReserveUnique(dir, "song", ".mp3")
	require.NoError(t, err)
	assert.Equal(t, "song (2).mp3", filepath.Base(second))
}

func TestReserveUniqueConcurrent(t *testing.T) {
	dir := t.TempDir()
	const n = 16

	var wg sync.WaitGroup
	names := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := ReserveUnique(dir, "clip", ".m4a")
			if assert.NoError(t, err) {
				names <- filepath.Base(p)
			}
		}()
	}
	wg.Wait()
	close(names)

	seen := map[string]bool{}
	for name := range names {
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen["clip.m4a"])
}

func TestConfineRelPathRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	_, err := ConfineRelPath(dir, "../escape.mp3")
	require.Error(t, err)
	_, err = ConfineRelPath(dir, `a\b.mp3`)
	require.Error(t, err)

	p, err := ConfineRelPath(dir, "ok.mp3")
	require.NoError(t, err)
	assert.Equal(t, "ok.mp3", filepath.Base(p))
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	require.Error(t, EnsureDir(file))
}
