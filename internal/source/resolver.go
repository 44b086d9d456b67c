// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package source resolves media identifiers into metadata and raw streams.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/ManuGH/tubemux/internal/cache"
	"github.com/ManuGH/tubemux/internal/log"
	"github.com/ManuGH/tubemux/internal/pipeline/model"
	"github.com/ManuGH/tubemux/internal/resilience"
)

// Extractor is the boundary to the external metadata/stream provider.
type Extractor interface {
	// Info returns metadata and formats, or an error wrapping
	// model.ErrNotFound when the identifier does not resolve.
	Info(ctx context.Context, id string) (*Info, error)
	// Open starts a raw byte stream for one format.
	Open(ctx context.Context, f Format) (io.ReadCloser, error)
}

// Resolver turns identifiers into metadata and opened streams.
type Resolver struct {
	extractor Extractor
	breaker   *resilience.CircuitBreaker

	metaCache cache.Cache
	metaTTL   time.Duration
}

// NewResolver wires an extractor. breaker may be nil.
func NewResolver(ex Extractor, breaker *resilience.CircuitBreaker) *Resolver {
	return &Resolver{extractor: ex, breaker: breaker}
}

func (r *Resolver) info(ctx context.Context, id Identifier) (*Info, error) {
	var info *Info
	call := func() error {
		var err error
		info, err = r.extractor.Info(ctx, id.Canonical)
		return err
	}
	var err error
	if r.breaker != nil {
		err = r.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", id.Canonical, err)
	}
	return info, nil
}

// CacheMetadata lets Describe answer from c for ttl. Streams are always
// resolved fresh since their URLs expire.
func (r *Resolver) CacheMetadata(c cache.Cache, ttl time.Duration) {
	r.metaCache = c
	r.metaTTL = ttl
}

// Describe returns metadata without opening any stream.
func (r *Resolver) Describe(ctx context.Context, raw string) (*Metadata, error) {
	id := Normalize(raw)
	key := "meta:" + id.Canonical
	if r.metaCache != nil {
		if b, ok := r.metaCache.Get(ctx, key); ok {
			var md Metadata
			if err := json.Unmarshal(b, &md); err == nil {
				return &md, nil
			}
			r.metaCache.Delete(ctx, key)
		}
	}

	info, err := r.info(ctx, id)
	if err != nil {
		return nil, err
	}
	md := metadataOf(id, info)

	if r.metaCache != nil && r.metaTTL > 0 {
		if b, err := json.Marshal(md); err == nil {
			r.metaCache.Set(ctx, key, b, r.metaTTL)
		}
	}
	return &md, nil
}

// ResolveAudio selects the highest-bitrate audio-only stream and opens it.
func (r *Resolver) ResolveAudio(ctx context.Context, raw string) (*Resolved, error) {
	id := Normalize(raw)
	info, err := r.info(ctx, id)
	if err != nil {
		return nil, err
	}

	audio, ok := selectAudio(info.Formats)
	if !ok {
		return nil, &model.FormatNotFoundError{Source: id.Canonical, Kind: "audio"}
	}

	body, err := r.extractor.Open(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("open audio %s: %w", audio.ID, err)
	}

	log.FromContext(ctx).Debug().
		Str(log.FieldSource, id.Canonical).
		Str("audio_format", audio.ID).
		Str("audio_codec", audio.AudioCodec).
		Msg("audio stream resolved")

	return &Resolved{
		Metadata: metadataOf(id, info),
		Audio:    &Stream{Format: audio, Body: body},
	}, nil
}

// ResolveMux selects a video-only stream for quality (falling back to the
// highest available) plus the best audio-only stream, and opens both.
// container steers codec preference between equal heights.
func (r *Resolver) ResolveMux(ctx context.Context, raw, quality string, container model.Format) (*Resolved, error) {
	id := Normalize(raw)
	info, err := r.info(ctx, id)
	if err != nil {
		return nil, err
	}
	md := metadataOf(id, info)

	video, ok := selectVideo(info.Formats, quality, container)
	if !ok {
		return nil, &model.FormatNotFoundError{Source: id.Canonical, Kind: "video", Requested: quality, Available: md.Qualities}
	}
	audio, ok := selectAudio(info.Formats)
	if !ok {
		return nil, &model.FormatNotFoundError{Source: id.Canonical, Kind: "audio", Requested: quality, Available: md.Qualities}
	}

	vbody, err := r.extractor.Open(ctx, video)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", video.ID, err)
	}
	abody, err := r.extractor.Open(ctx, audio)
	if err != nil {
		_ = vbody.Close()
		return nil, fmt.Errorf("open audio %s: %w", audio.ID, err)
	}

	log.FromContext(ctx).Debug().
		Str(log.FieldSource, id.Canonical).
		Str(log.FieldQuality, quality).
		Str("video_format", video.ID).
		Str("video_label", video.QualityLabel()).
		Str("audio_format", audio.ID).
		Msg("dual stream resolved")

	return &Resolved{
		Metadata: md,
		Video:    &Stream{Format: video, Body: vbody},
		Audio:    &Stream{Format: audio, Body: abody},
	}, nil
}

func metadataOf(id Identifier, info *Info) Metadata {
	md := Metadata{
		URL:         id.Canonical,
		Title:       info.Title,
		Description: info.Description,
		Qualities:   qualities(info.Formats),
	}
	if n := len(info.Thumbnails); n > 0 {
		t := info.Thumbnails[n-1]
		md.Thumbnail = &t
	}
	return md
}

// qualities returns the distinct quality labels of video-only formats,
// highest resolution first.
func qualities(formats []Format) []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range formats {
		if !f.VideoOnly() {
			continue
		}
		label := f.QualityLabel()
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	slices.SortFunc(out, func(a, b string) int {
		if ha, hb := qualityHeight(a), qualityHeight(b); ha != hb {
			return hb - ha
		}
		return strings.Compare(b, a)
	})
	if out == nil {
		out = []string{}
	}
	return out
}

func selectAudio(formats []Format) (Format, bool) {
	var best Format
	found := false
	for _, f := range formats {
		if !f.AudioOnly() {
			continue
		}
		if !found || f.Bitrate > best.Bitrate {
			best, found = f, true
		}
	}
	return best, found
}

func selectVideo(formats []Format, quality string, container model.Format) (Format, bool) {
	var all []Format
	for _, f := range formats {
		if f.VideoOnly() {
			all = append(all, f)
		}
	}
	if len(all) == 0 {
		return Format{}, false
	}

	candidates := all
	if quality != "" && quality != model.QualityHighest {
		var matched []Format
		for _, f := range all {
			if strings.HasPrefix(f.QualityLabel(), quality) {
				matched = append(matched, f)
			}
		}
		if len(matched) > 0 {
			candidates = matched
		}
	}

	best := candidates[0]
	for _, f := range candidates[1:] {
		if betterVideo(f, best, container) {
			best = f
		}
	}
	return best, true
}

func betterVideo(a, b Format, container model.Format) bool {
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	ca, cb := model.CanCopyVideo(container, a.VideoCodec), model.CanCopyVideo(container, b.VideoCodec)
	if ca != cb {
		return ca
	}
	return a.Bitrate > b.Bitrate
}
