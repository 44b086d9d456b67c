// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package source

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// Format is one downloadable rendition reported by the extractor.
type Format struct {
	ID         string
	Container  string
	VideoCodec string
	AudioCodec string
	Height     int
	Note       string
	Bitrate    float64 // kbit/s
	URL        string
	Headers    map[string]string
}

// HasVideo reports whether the format carries a video stream.
func (f Format) HasVideo() bool { return f.VideoCodec != "" && f.VideoCodec != "none" }

// HasAudio reports whether the format carries an audio stream.
func (f Format) HasAudio() bool { return f.AudioCodec != "" && f.AudioCodec != "none" }

// VideoOnly reports a video stream without audio.
func (f Format) VideoOnly() bool { return f.HasVideo() && !f.HasAudio() }

// AudioOnly reports an audio stream without video.
func (f Format) AudioOnly() bool { return f.HasAudio() && !f.HasVideo() }

var qualityLabelRe = regexp.MustCompile(`^(\d+)p(\d*)`)

// QualityLabel returns a label such as "720p" or "1080p60".
func (f Format) QualityLabel() string {
	if m := qualityLabelRe.FindString(f.Note); m != "" {
		return m
	}
	if f.Height > 0 {
		return fmt.Sprintf("%dp", f.Height)
	}
	return ""
}

// Thumbnail is a preview image.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Info is the raw extractor answer for one identifier.
type Info struct {
	ID          string
	Title       string
	Description string
	Thumbnails  []Thumbnail
	Formats     []Format
}

// Metadata is the caller-facing description of a source.
type Metadata struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Thumbnail   *Thumbnail `json:"thumbnail,omitempty"`
	Qualities   []string   `json:"qualities"`
}

// Stream is an opened byte stream for one selected format.
type Stream struct {
	Format Format
	Body   io.ReadCloser
}

// Resolved is the result of a resolve call. Each stream body is consumed
// at most once; ownership passes to the transcoder.
type Resolved struct {
	Metadata
	Video *Stream
	Audio *Stream
}

// Inputs returns the opened bodies in transcoder input order (video first).
func (r *Resolved) Inputs() []io.ReadCloser {
	var in []io.ReadCloser
	if r.Video != nil {
		in = append(in, r.Video.Body)
	}
	if r.Audio != nil {
		in = append(in, r.Audio.Body)
	}
	return in
}

// Close releases any stream bodies that were never handed to a consumer.
func (r *Resolved) Close() error {
	var first error
	for _, in := range r.Inputs() {
		if err := in.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func qualityHeight(label string) int {
	m := qualityLabelRe.FindStringSubmatch(label)
	if m == nil {
		return 0
	}
	h, _ := strconv.Atoi(m[1])
	return h
}
