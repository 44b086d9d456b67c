// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FFmpegStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_ffmpeg_start_total",
		Help: "Total number of ffmpeg process starts",
	}, []string{"result"})

	FFmpegExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_ffmpeg_exit_total",
		Help: "Total number of ffmpeg process exits, by reason",
	}, []string{"reason"})

	FFmpegCodecPathTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_ffmpeg_codec_path_total",
		Help: "Stream handling decisions, by stream (audio, video) and path (copy, encode)",
	}, []string{"stream", "path"})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_proc_terminate_total",
		Help: "Signals sent to child process groups, by signal and result",
	}, []string{"signal", "result"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_proc_wait_total",
		Help: "Child process wait outcomes after termination",
	}, []string{"outcome"})
)

// IncFFmpegStart records a process start attempt.
func IncFFmpegStart(result string) { FFmpegStartTotal.WithLabelValues(result).Inc() }

// IncFFmpegExit records a process exit reason.
func IncFFmpegExit(reason string) { FFmpegExitTotal.WithLabelValues(reason).Inc() }

// IncCodecPath records whether a stream was copied or re-encoded.
func IncCodecPath(stream, path string) { FFmpegCodecPathTotal.WithLabelValues(stream, path).Inc() }

// IncProcTerminate records a signal delivery attempt.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how a terminated process was reaped.
func IncProcWait(outcome string) {
	procWaitTotal.WithLabelValues(outcome).Inc()
}
