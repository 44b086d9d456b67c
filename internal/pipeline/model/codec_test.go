// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodecFamily(t *testing.T) {
	cases := map[string]string{
		"avc1.64001F": CodecH264,
		"vp09.00.40":  CodecVP9,
		"VP9":         CodecVP9,
		"av01.0.08M":  CodecAV1,
		"mp4a.40.2":   CodecAAC,
		"mp4a.40.34":  CodecMP3,
		"opus":        CodecOpus,
		"none":        "",
		"":            "",
		"theora":      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, CodecFamily(in), in)
	}
}

func TestCopyCompatibility(t *testing.T) {
	assert.True(t, CanCopyVideo(FormatMP4, "avc1.4d401f"))
	assert.False(t, CanCopyVideo(FormatMP4, "vp9"))
	assert.True(t, CanCopyVideo(FormatWebM, "vp9"))
	assert.True(t, CanCopyVideo(FormatMKV, "vp9"))

	assert.True(t, CanCopyAudio(FormatM4A, "mp4a.40.2"))
	assert.False(t, CanCopyAudio(FormatMP3, "opus"))
	assert.True(t, CanCopyAudio(FormatOGG, "opus"))
	assert.False(t, CanCopyAudio(FormatWAV, "opus"))
	assert.False(t, CanCopyAudio(FormatMP4, ""))
}
