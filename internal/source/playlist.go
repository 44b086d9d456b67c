// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/ytdlp/v2"

	"github.com/ManuGH/tubemux/internal/pipeline/model"
)

// PlaylistEntry is one video of an expanded playlist.
type PlaylistEntry struct {
	VideoID string `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
}

// Playlist is an expanded playlist.
type Playlist struct {
	ID      string          `json:"id"`
	Entries []PlaylistEntry `json:"entries"`
}

// URLs returns the canonical watch URLs in playlist order.
func (p *Playlist) URLs() []string {
	out := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		out = append(out, e.URL)
	}
	return out
}

type playlistFetch func(ctx context.Context, playlistID string) ([]PlaylistEntry, error)

// Playlists expands playlist URLs into their video URLs.
type Playlists struct {
	timeout time.Duration
	fetch   playlistFetch
}

// NewPlaylists uses the ytdlp library to enumerate playlist items.
func NewPlaylists(timeout time.Duration) *Playlists {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Playlists{timeout: timeout, fetch: fetchWithYTDLP}
}

func fetchWithYTDLP(ctx context.Context, playlistID string) ([]PlaylistEntry, error) {
	d := ytdlp.New()
	items, err := d.GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, err
	}
	entries := make([]PlaylistEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, PlaylistEntry{VideoID: it.VideoID, Title: it.Title, URL: WatchURL(it.VideoID)})
	}
	return entries, nil
}

// Expand resolves raw (a playlist URL or a bare playlist id).
func (p *Playlists) Expand(ctx context.Context, raw string) (*Playlist, error) {
	id, err := PlaylistID(raw)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	entries, err := p.fetch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("expand playlist %s: %w", id, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("expand playlist %s: %w", id, model.ErrNotFound)
	}
	return &Playlist{ID: id, Entries: entries}, nil
}

// PlaylistID extracts the "list" parameter from a URL, or accepts a bare id.
func PlaylistID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &model.ValidationError{Field: "url", Reason: "playlist url is required"}
	}
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		if id := u.Query().Get("list"); validVideoID(id) {
			return id, nil
		}
		return "", &model.ValidationError{Field: "url", Reason: "url has no playlist id"}
	}
	if validVideoID(s) {
		return s, nil
	}
	return "", &model.ValidationError{Field: "url", Reason: "invalid playlist id"}
}
