// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpeg runs transcoder processes fed through dedicated input pipes.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/tubemux/internal/log"
	"github.com/ManuGH/tubemux/internal/metrics"
	"github.com/ManuGH/tubemux/internal/pipeline/model"
	"github.com/ManuGH/tubemux/internal/procgroup"
)

const (
	diagnosticLines  = 20
	defaultKillGrace = 2 * time.Second
)

// Job is one transcoder invocation. Inputs are exposed to the process as
// pipe:3, pipe:4, ... in slice order (see InputArg).
type Job struct {
	ID      string
	Inputs  []io.ReadCloser
	Args    []string
	Sink    io.Writer
	Timeout time.Duration
	// OnState observes Piping and Muxing, then the terminal state once the
	// process has been reaped.
	OnState func(model.State)
}

// Result describes a finished process.
type Result struct {
	ExitCode    int
	Duration    time.Duration
	BytesOut    int64
	Diagnostics []string
}

// Runner executes Jobs.
type Runner struct {
	BinaryPath string
	// KillGrace bounds the wait for a killed process to be reaped.
	KillGrace time.Duration
}

// NewRunner creates a runner for bin ("ffmpeg" when empty).
func NewRunner(bin string, killGrace time.Duration) *Runner {
	if bin == "" {
		bin = "ffmpeg"
	}
	if killGrace <= 0 {
		killGrace = defaultKillGrace
	}
	return &Runner{BinaryPath: bin, KillGrace: killGrace}
}

// Run starts the process and blocks until it exits, the job timeout
// fires, or ctx is cancelled. Inputs are always closed. On cancellation
// the process group is killed and Sink is sealed before Run returns.
func (r *Runner) Run(ctx context.Context, job Job) (res Result, err error) {
	logger := log.WithComponentFromContext(ctx, "ffmpeg")
	notify := func(s model.State) {
		if job.OnState != nil {
			job.OnState(s)
		}
	}

	defer closeAll(job.Inputs)

	if job.Sink == nil {
		return res, errors.New("job has no sink")
	}
	if err := ctx.Err(); err != nil {
		return res, &model.CancelledError{Err: err}
	}

	grace := r.KillGrace
	if grace <= 0 {
		grace = defaultKillGrace
	}

	ring := NewLineRing(256)
	sink := NewGuardedWriter(job.Sink)

	// #nosec G204 -- binary from operator config, args built by BuildAudioArgs/BuildMuxArgs
	cmd := exec.Command(r.BinaryPath, job.Args...)
	procgroup.Set(cmd)
	cmd.Stdout = sink
	cmd.Stderr = ring
	cmd.WaitDelay = grace

	readers := make([]*os.File, 0, len(job.Inputs))
	writers := make([]*os.File, 0, len(job.Inputs))
	closePipes := func() {
		for _, f := range readers {
			_ = f.Close()
		}
		for _, f := range writers {
			_ = f.Close()
		}
	}
	for range job.Inputs {
		pr, pw, perr := os.Pipe()
		if perr != nil {
			closePipes()
			return res, fmt.Errorf("create input pipe: %w", perr)
		}
		readers = append(readers, pr)
		writers = append(writers, pw)
	}
	cmd.ExtraFiles = readers

	start := time.Now()
	if err := cmd.Start(); err != nil {
		closePipes()
		metrics.IncFFmpegStart("error")
		return res, &model.TranscodeError{ExitCode: -1, Err: fmt.Errorf("start %s: %w", r.BinaryPath, err)}
	}
	metrics.IncFFmpegStart("ok")
	// The child holds its own copies of the read ends.
	for _, f := range readers {
		_ = f.Close()
	}

	logger.Debug().
		Int(log.FieldPID, cmd.Process.Pid).
		Int("inputs", len(job.Inputs)).
		Strs("args", job.Args).
		Msg("ffmpeg started")

	var (
		feeders errgroup.Group
		stopped atomic.Bool
	)
	for i := range job.Inputs {
		in, pw := job.Inputs[i], writers[i]
		feeders.Go(func() error {
			defer pw.Close()
			// Errors after the process is gone come from our own teardown.
			if _, err := io.Copy(pw, in); err != nil && !isPipeClosed(err) && !stopped.Load() {
				return fmt.Errorf("input %d: %w", i, err)
			}
			return nil
		})
	}
	notify(model.StatePiping)
	notify(model.StateMuxing)

	exitCh := make(chan error, 1)
	go func() { exitCh <- cmd.Wait() }()

	var timeout <-chan time.Time
	if job.Timeout > 0 {
		timer := time.NewTimer(job.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var (
		waitErr error
		reason  string
	)
	select {
	case waitErr = <-exitCh:
	case <-timeout:
		reason = "timeout"
		sink.Seal()
		r.kill(cmd, exitCh, grace, job)
	case <-ctx.Done():
		reason = "cancelled"
		sink.Seal()
		r.kill(cmd, exitCh, grace, job)
	}

	// Closing the sources unblocks feeders stuck on a network read.
	stopped.Store(true)
	closeAll(job.Inputs)
	feedErr := feeders.Wait()

	res = Result{
		Duration:    time.Since(start),
		BytesOut:    sink.Written(),
		Diagnostics: ring.LastN(diagnosticLines),
	}

	switch reason {
	case "timeout":
		res.ExitCode = -1
		err = &model.TimeoutError{Scope: "task", After: job.Timeout}
		notify(model.StateFailed)
	case "cancelled":
		res.ExitCode = -1
		err = &model.CancelledError{Err: ctx.Err()}
		notify(model.StateCancelled)
	default:
		res.ExitCode = exitCode(waitErr)
		switch {
		case waitErr != nil:
			reason = "error"
			err = &model.TranscodeError{ExitCode: res.ExitCode, Diagnostics: res.Diagnostics, Err: waitErr}
		case feedErr != nil:
			reason = "input_error"
			err = &model.TranscodeError{ExitCode: 0, Diagnostics: res.Diagnostics, Err: feedErr}
		default:
			reason = "clean"
		}
		if err != nil {
			notify(model.StateFailed)
		} else {
			notify(model.StateCompleted)
		}
	}
	metrics.IncFFmpegExit(reason)

	ev := logger.Debug()
	if err != nil && reason != "cancelled" {
		ev = logger.Warn().Err(err).Strs("stderr", res.Diagnostics)
	}
	ev.Str(log.FieldTaskID, job.ID).
		Str("reason", reason).
		Int(log.FieldExitCode, res.ExitCode).
		Int64(log.FieldBytes, res.BytesOut).
		Int64(log.FieldDuration, res.Duration.Milliseconds()).
		Msg("ffmpeg finished")

	return res, err
}

func (r *Runner) kill(cmd *exec.Cmd, exitCh <-chan error, grace time.Duration, job Job) {
	if _, ok := procgroup.ForceKill(cmd, exitCh, grace); !ok {
		log.L().Error().
			Str(log.FieldTaskID, job.ID).
			Int(log.FieldPID, cmd.Process.Pid).
			Dur("grace", grace).
			Msg("ffmpeg not reaped after SIGKILL")
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func isPipeClosed(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed)
}

func closeAll(cs []io.ReadCloser) {
	for _, c := range cs {
		if c != nil {
			_ = c.Close()
		}
	}
}
