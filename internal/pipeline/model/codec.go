// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "strings"

// Codec families as reported by extractors (RFC 6381 style or plain names).
const (
	CodecH264   = "h264"
	CodecHEVC   = "hevc"
	CodecVP8    = "vp8"
	CodecVP9    = "vp9"
	CodecAV1    = "av1"
	CodecAAC    = "aac"
	CodecOpus   = "opus"
	CodecVorbis = "vorbis"
	CodecMP3    = "mp3"
	CodecFLAC   = "flac"
)

var codecPrefixes = []struct {
	prefix string
	family string
}{
	{"avc", CodecH264},
	{"h264", CodecH264},
	{"hvc1", CodecHEVC},
	{"hev1", CodecHEVC},
	{"hevc", CodecHEVC},
	{"h265", CodecHEVC},
	{"vp09", CodecVP9},
	{"vp9", CodecVP9},
	{"vp8", CodecVP8},
	{"av01", CodecAV1},
	{"av1", CodecAV1},
	{"mp4a.40.34", CodecMP3},
	{"mp4a", CodecAAC},
	{"aac", CodecAAC},
	{"opus", CodecOpus},
	{"vorbis", CodecVorbis},
	{"mp3", CodecMP3},
	{"flac", CodecFLAC},
}

// CodecFamily normalises a codec string. Unknown or "none" yields "".
func CodecFamily(codec string) string {
	c := strings.ToLower(strings.TrimSpace(codec))
	if c == "" || c == "none" {
		return ""
	}
	for _, p := range codecPrefixes {
		if strings.HasPrefix(c, p.prefix) {
			return p.family
		}
	}
	return ""
}

var (
	videoCopy = map[Format][]string{
		FormatMP4:  {CodecH264, CodecHEVC, CodecAV1},
		FormatWebM: {CodecVP8, CodecVP9, CodecAV1},
		FormatMKV:  {CodecH264, CodecHEVC, CodecVP8, CodecVP9, CodecAV1},
	}
	audioCopy = map[Format][]string{
		FormatMP4:  {CodecAAC, CodecMP3},
		FormatM4A:  {CodecAAC},
		FormatWebM: {CodecOpus, CodecVorbis},
		FormatMKV:  {CodecAAC, CodecOpus, CodecVorbis, CodecMP3, CodecFLAC},
		FormatMP3:  {CodecMP3},
		FormatOGG:  {CodecOpus, CodecVorbis, CodecFLAC},
		FormatFLAC: {CodecFLAC},
	}
)

// CanCopyVideo reports whether a video stream of codec can be muxed into f
// without re-encoding.
func CanCopyVideo(f Format, codec string) bool {
	return containsFamily(videoCopy[f], CodecFamily(codec))
}

// CanCopyAudio reports whether an audio stream of codec can be muxed into f
// without re-encoding.
func CanCopyAudio(f Format, codec string) bool {
	return containsFamily(audioCopy[f], CodecFamily(codec))
}

func containsFamily(list []string, family string) bool {
	if family == "" {
		return false
	}
	for _, f := range list {
		if f == family {
			return true
		}
	}
	return false
}
