// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"slices"

	"github.com/ManuGH/tubemux/internal/metrics"
	"github.com/ManuGH/tubemux/internal/pipeline/model"
)

const (
	// DefaultAudioBitrate is used whenever audio is re-encoded.
	DefaultAudioBitrate = "192k"
	// DefaultVideoCRF is the constant rate factor of the CPU encode path.
	DefaultVideoCRF = 24
	// DefaultVideoPreset trades size for speed on the CPU encode path.
	DefaultVideoPreset = "ultrafast"

	// firstInputFD is the child descriptor of the first input pipe
	// (0-2 are stdio, ExtraFiles start at 3).
	firstInputFD = 3
)

// EncodeOptions overrides the numeric encode policy.
type EncodeOptions struct {
	AudioBitrate string
	VideoCRF     int
	VideoPreset  string
}

func (o EncodeOptions) withDefaults() EncodeOptions {
	if o.AudioBitrate == "" {
		o.AudioBitrate = DefaultAudioBitrate
	}
	if o.VideoCRF <= 0 {
		o.VideoCRF = DefaultVideoCRF
	}
	if o.VideoPreset == "" {
		o.VideoPreset = DefaultVideoPreset
	}
	return o
}

// AudioSpec describes an audio extraction.
type AudioSpec struct {
	Format      model.Format
	SourceCodec string
	Options     EncodeOptions
}

// MuxSpec describes a video-only plus audio-only mux.
type MuxSpec struct {
	Format     model.Format
	VideoCodec string
	AudioCodec string
	Options    EncodeOptions
}

// InputArg is the ffmpeg URL of the i-th job input.
func InputArg(i int) string {
	return fmt.Sprintf("pipe:%d", firstInputFD+i)
}

func baseArgs() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-threads", "0",
	}
}

// BuildAudioArgs builds the command line for one audio-only input.
// Compatible source codecs are stream-copied, everything else is encoded
// with the container's codec.
func BuildAudioArgs(spec AudioSpec) ([]string, error) {
	if !isAudioFormat(spec.Format) {
		return nil, fmt.Errorf("unsupported audio format %q", spec.Format)
	}
	opts := spec.Options.withDefaults()

	args := baseArgs()
	args = append(args, "-i", InputArg(0), "-vn", "-map", "0:a:0")

	if model.CanCopyAudio(spec.Format, spec.SourceCodec) {
		args = append(args, "-c:a", "copy")
		metrics.IncCodecPath("audio", "copy")
	} else {
		args = append(args, audioEncoder(spec.Format, opts)...)
		metrics.IncCodecPath("audio", "encode")
	}

	args = append(args, containerArgs(spec.Format)...)
	return append(args, "pipe:1"), nil
}

// BuildMuxArgs builds the command line for a two-input mux: input 0 is
// video, input 1 is audio. Video is copied whenever the container accepts
// its codec.
func BuildMuxArgs(spec MuxSpec) ([]string, error) {
	if !isVideoFormat(spec.Format) {
		return nil, fmt.Errorf("unsupported video format %q", spec.Format)
	}
	opts := spec.Options.withDefaults()

	args := baseArgs()
	args = append(args,
		"-i", InputArg(0),
		"-i", InputArg(1),
		"-map", "0:v:0",
		"-map", "1:a:0",
	)

	if model.CanCopyVideo(spec.Format, spec.VideoCodec) {
		args = append(args, "-c:v", "copy")
		metrics.IncCodecPath("video", "copy")
	} else {
		args = append(args, videoEncoder(spec.Format, opts)...)
		metrics.IncCodecPath("video", "encode")
	}

	if model.CanCopyAudio(spec.Format, spec.AudioCodec) {
		args = append(args, "-c:a", "copy")
		metrics.IncCodecPath("audio", "copy")
	} else {
		args = append(args, audioEncoder(spec.Format, opts)...)
		metrics.IncCodecPath("audio", "encode")
	}

	args = append(args, "-shortest")
	args = append(args, containerArgs(spec.Format)...)
	return append(args, "pipe:1"), nil
}

func audioEncoder(f model.Format, o EncodeOptions) []string {
	switch f {
	case model.FormatMP3:
		return []string{"-c:a", "libmp3lame", "-b:a", o.AudioBitrate}
	case model.FormatOGG:
		return []string{"-c:a", "libvorbis", "-b:a", o.AudioBitrate}
	case model.FormatFLAC:
		return []string{"-c:a", "flac"}
	case model.FormatWAV:
		return []string{"-c:a", "pcm_s16le"}
	case model.FormatWebM:
		return []string{"-c:a", "libopus", "-b:a", o.AudioBitrate}
	default:
		return []string{"-c:a", "aac", "-b:a", o.AudioBitrate}
	}
}

func videoEncoder(f model.Format, o EncodeOptions) []string {
	if f == model.FormatWebM {
		return []string{"-c:v", "libvpx-vp9", "-deadline", "realtime", "-cpu-used", "8", "-crf", fmt.Sprint(o.VideoCRF + 8), "-b:v", "0"}
	}
	return []string{"-c:v", "libx264", "-preset", o.VideoPreset, "-crf", fmt.Sprint(o.VideoCRF), "-pix_fmt", "yuv420p"}
}

// containerArgs selects the muxer. Output always goes to a pipe, so
// mp4-family containers are fragmented and never seek back.
func containerArgs(f model.Format) []string {
	switch f {
	case model.FormatMP4, model.FormatM4A:
		out := []string{"-movflags", "frag_keyframe+empty_moov"}
		if f == model.FormatM4A {
			return append(out, "-f", "ipod")
		}
		return append(out, "-f", "mp4")
	case model.FormatMKV:
		return []string{"-f", "matroska"}
	case model.FormatWebM:
		return []string{"-f", "webm"}
	case model.FormatOGG:
		return []string{"-f", "ogg"}
	default:
		return []string{"-f", string(f)}
	}
}

func isAudioFormat(f model.Format) bool { return slices.Contains(model.AudioFormats(), f) }

func isVideoFormat(f model.Format) bool { return slices.Contains(model.VideoFormats(), f) }
