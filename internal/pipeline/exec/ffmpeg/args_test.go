// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tubemux/internal/pipeline/model"
)

func joined(args []string) string { return strings.Join(args, " ") }

func TestBuildAudioArgs(t *testing.T) {
	cases := []struct {
		name   string
		spec   AudioSpec
		want   []string
		absent []string
	}{
		{
			name: "opus into ogg is copied",
			spec: AudioSpec{Format: model.FormatOGG, SourceCodec: "opus"},
			want: []string{"-i pipe:3", "-c:a copy", "-f ogg", "pipe:1"},
		},
		{
			name:   "opus into mp3 is encoded at 192k",
			spec:   AudioSpec{Format: model.FormatMP3, SourceCodec: "opus"},
			want:   []string{"-c:a libmp3lame -b:a 192k", "-f mp3"},
			absent: []string{"copy"},
		},
		{
			name: "aac into m4a is copied and fragmented",
			spec: AudioSpec{Format: model.FormatM4A, SourceCodec: "mp4a.40.2"},
			want: []string{"-c:a copy", "-movflags frag_keyframe+empty_moov", "-f ipod"},
		},
		{
			name:   "opus into m4a is encoded and never seeks",
			spec:   AudioSpec{Format: model.FormatM4A, SourceCodec: "opus"},
			want:   []string{"-c:a aac -b:a 192k", "-movflags frag_keyframe+empty_moov"},
			absent: []string{"faststart"},
		},
		{
			name: "wav is always pcm",
			spec: AudioSpec{Format: model.FormatWAV, SourceCodec: "opus"},
			want: []string{"-c:a pcm_s16le", "-f wav"},
		},
		{
			name: "custom bitrate",
			spec: AudioSpec{Format: model.FormatMP3, SourceCodec: "opus", Options: EncodeOptions{AudioBitrate: "320k"}},
			want: []string{"-b:a 320k"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args, err := BuildAudioArgs(tc.spec)
			require.NoError(t, err)
			s := joined(args)
			assert.True(t, strings.HasPrefix(s, "-nostdin -hide_banner -loglevel error -threads 0"), s)
			for _, w := range tc.want {
				assert.Contains(t, s, w)
			}
			for _, a := range tc.absent {
				assert.NotContains(t, s, a)
			}
		})
	}
}

func TestBuildMuxArgs(t *testing.T) {
	args, err := BuildMuxArgs(MuxSpec{Format: model.FormatMP4, VideoCodec: "avc1.640028", AudioCodec: "opus"})
	require.NoError(t, err)
	s := joined(args)
	assert.Contains(t, s, "-i pipe:3 -i pipe:4 -map 0:v:0 -map 1:a:0")
	assert.Contains(t, s, "-c:v copy")
	assert.Contains(t, s, "-c:a aac -b:a 192k")
	assert.Contains(t, s, "-movflags frag_keyframe+empty_moov")

	args, err = BuildMuxArgs(MuxSpec{Format: model.FormatMP4, VideoCodec: "vp9", AudioCodec: "mp4a.40.2"})
	require.NoError(t, err)
	s = joined(args)
	assert.Contains(t, s, "-c:v libx264 -preset ultrafast -crf 24")
	assert.Contains(t, s, "-c:a copy")
	assert.Contains(t, s, "-movflags frag_keyframe+empty_moov")
	assert.NotContains(t, s, "faststart")

	args, err = BuildMuxArgs(MuxSpec{Format: model.FormatWebM, VideoCodec: "avc1", AudioCodec: "opus"})
	require.NoError(t, err)
	s = joined(args)
	assert.Contains(t, s, "-c:v libvpx-vp9")
	assert.Contains(t, s, "-c:a copy")

	args, err = BuildMuxArgs(MuxSpec{Format: model.FormatMKV, VideoCodec: "vp9", AudioCodec: "opus"})
	require.NoError(t, err)
	assert.Contains(t, joined(args), "-c:v copy -c:a copy")
}

func TestBuildArgsRejectsWrongKind(t *testing.T) {
	_, err := BuildAudioArgs(AudioSpec{Format: model.FormatMP4})
	assert.Error(t, err)
	_, err = BuildMuxArgs(MuxSpec{Format: model.FormatMP3})
	assert.Error(t, err)
}
