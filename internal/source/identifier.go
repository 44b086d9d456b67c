// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package source

import (
	"net/url"
	"strings"
)

const watchURLPrefix = "https://www.youtube.com/watch?v="

// Identifier pairs the caller-supplied string with its canonical form.
type Identifier struct {
	Raw       string
	Canonical string
}

func (id Identifier) String() string { return id.Canonical }

// Normalize canonicalises recognised video URL shapes to
// https://www.youtube.com/watch?v=<id>. Anything else, including strings
// that do not parse as URLs, is returned unchanged. Normalize is idempotent.
func Normalize(raw string) Identifier {
	return Identifier{Raw: raw, Canonical: canonical(raw)}
}

// WatchURL builds the canonical URL for a bare video id.
func WatchURL(videoID string) string {
	return watchURLPrefix + videoID
}

func canonical(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	var id string
	switch host {
	case "youtu.be":
		id = firstSegment(u.Path)
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		default:
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) == 2 && (parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live") {
				id = parts[1]
			}
		}
	}
	if !validVideoID(id) {
		return raw
	}
	return WatchURL(id)
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}

func validVideoID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
