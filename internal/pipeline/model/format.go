// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"slices"
	"strings"
)

// Kind selects the audio-only or the dual-stream video flow.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Format is a target container / file extension.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatWAV  Format = "wav"
	FormatOGG  Format = "ogg"
	FormatFLAC Format = "flac"
	FormatM4A  Format = "m4a"
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
	FormatMKV  Format = "mkv"
)

// QualityHighest selects the best available video stream.
const QualityHighest = "highest"

var (
	audioFormats = []Format{FormatMP3, FormatWAV, FormatOGG, FormatFLAC, FormatM4A}
	videoFormats = []Format{FormatMP4, FormatWebM, FormatMKV}
	qualities    = []string{"1080p", "720p", "480p", "360p", QualityHighest}

	contentTypes = map[Format]string{
		FormatMP3:  "audio/mpeg",
		FormatWAV:  "audio/wav",
		FormatOGG:  "audio/ogg",
		FormatFLAC: "audio/flac",
		FormatM4A:  "audio/mp4",
		FormatMP4:  "video/mp4",
		FormatWebM: "video/webm",
		FormatMKV:  "video/x-matroska",
	}
)

// AudioFormats lists the supported audio targets.
func AudioFormats() []Format { return slices.Clone(audioFormats) }

// VideoFormats lists the supported video targets.
func VideoFormats() []Format { return slices.Clone(videoFormats) }

// Qualities lists the accepted video quality labels.
func Qualities() []string { return slices.Clone(qualities) }

// ParseFormat validates s against the formats allowed for kind.
func ParseFormat(kind Kind, s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	allowed := audioFormats
	if kind == KindVideo {
		allowed = videoFormats
	}
	if !slices.Contains(allowed, f) {
		return "", &ValidationError{Field: "format", Reason: fmt.Sprintf("unsupported %s format %q", kind, s)}
	}
	return f, nil
}

// ParseQuality validates a video quality label. Empty means highest.
func ParseQuality(s string) (string, error) {
	q := strings.ToLower(strings.TrimSpace(s))
	if q == "" {
		return QualityHighest, nil
	}
	if !slices.Contains(qualities, q) {
		return "", &ValidationError{Field: "quality", Reason: fmt.Sprintf("unsupported quality %q", s)}
	}
	return q, nil
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if ct, ok := contentTypes[f]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string { return "." + string(f) }
