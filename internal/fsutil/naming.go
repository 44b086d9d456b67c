// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil holds filesystem helpers for delivered media files.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxNameBytes = 180
	fallbackName = "untitled"
	maxSuffix    = 10000
)

// ErrNoFreeName is returned when every "(n)" candidate is taken.
var ErrNoFreeName = errors.New("no free file name")

// SanitizeFilename decomposes title, strips combining marks, removes
// characters that are invalid in file names and bounds the length.
func SanitizeFilename(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, title)
	if err != nil {
		s = title
	}

	var b strings.Builder
	space := false
	for _, r := range s {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r), unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		b.WriteRune(r)
	}

	out := strings.Trim(b.String(), " .")
	if len(out) > maxNameBytes {
		out = out[:maxNameBytes]
		for !utf8.ValidString(out) {
			out = out[:len(out)-1]
		}
		out = strings.TrimRight(out, " .")
	}
	if out == "" {
		return fallbackName
	}
	return out
}

// CandidateName returns "base.ext" for n == 0 and "base (n).ext" otherwise.
// ext includes the dot.
func CandidateName(base, ext string, n int) string {
	if n == 0 {
		return base + ext
	}
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}

// ReserveUnique claims the first free "base (n).ext" name in dir by
// creating an empty placeholder with O_EXCL, so concurrent writers never
// pick the same name. The caller replaces or removes the placeholder.
func ReserveUnique(dir, base, ext string) (string, error) {
	for n := 0; n < maxSuffix; n++ {
		name := CandidateName(base, ext, n)
		path, err := ConfineRelPath(dir, name)
		if err != nil {
			return "", err
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return "", fmt.Errorf("reserve %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("%w for %s%s in %s", ErrNoFreeName, base, ext, filepath.Clean(dir))
}
