// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/tubemux/internal/pipeline/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type trackedReader struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func (t *trackedReader) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *trackedReader) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type stateLog struct {
	mu     sync.Mutex
	states []model.State
}

func (s *stateLog) record(st model.State) {
	s.mu.Lock()
	s.states = append(s.states, st)
	s.mu.Unlock()
}

func (s *stateLog) get() []model.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.State(nil), s.states...)
}

func shRunner() *Runner { return NewRunner("/bin/sh", time.Second) }

func TestRunFeedsInputsAsPipes(t *testing.T) {
	video := &trackedReader{Reader: strings.NewReader("VIDEO")}
	audio := &trackedReader{Reader: strings.NewReader("AUDIO")}
	out := &syncBuffer{}
	states := &stateLog{}

	res, err := shRunner().Run(context.Background(), Job{
		ID:      "t1",
		Inputs:  []io.ReadCloser{video, audio},
		Args:    []string{"-c", "cat <&3; printf %s -; cat <&4"},
		Sink:    out,
		Timeout: 5 * time.Second,
		OnState: states.record,
	})
	require.NoError(t, err)
	assert.Equal(t, "VIDEO-AUDIO", out.String())
	assert.Equal(t, 0, res.ExitCode)
	assert.EqualValues(t, len("VIDEO-AUDIO"), res.BytesOut)
	assert.True(t, video.isClosed())
	assert.True(t, audio.isClosed())
	assert.Equal(t, []model.State{model.StatePiping, model.StateMuxing, model.StateCompleted}, states.get())
}

func TestRunNonZeroExitCarriesDiagnostics(t *testing.T) {
	in := &trackedReader{Reader: strings.NewReader("x")}
	_, err := shRunner().Run(context.Background(), Job{
		Inputs: []io.ReadCloser{in},
		Args:   []string{"-c", "echo 'Invalid data found when processing input' >&2; exit 3"},
		Sink:   io.Discard,
	})

	var te *model.TranscodeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3, te.ExitCode)
	assert.Contains(t, te.Diagnostics, "Invalid data found when processing input")
	assert.True(t, in.isClosed())
	assert.Equal(t, model.ReasonTranscode, model.Classify(err))
}

func TestRunInputErrorFailsTask(t *testing.T) {
	broken := &trackedReader{Reader: io.MultiReader(strings.NewReader("partial"), errReader{errors.New("connection reset")})}
	_, err := shRunner().Run(context.Background(), Job{
		Inputs: []io.ReadCloser{broken},
		Args:   []string{"-c", "cat <&3 >/dev/null"},
		Sink:   io.Discard,
	})

	var te *model.TranscodeError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "connection reset")
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

func TestRunTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	states := &stateLog{}

	start := time.Now()
	_, err := shRunner().Run(context.Background(), Job{
		Inputs:  []io.ReadCloser{pr},
		Args:    []string{"-c", "sleep 30"},
		Sink:    io.Discard,
		Timeout: 100 * time.Millisecond,
		OnState: states.record,
	})

	var to *model.TimeoutError
	require.ErrorAs(t, err, &to)
	assert.Equal(t, "task", to.Scope)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, model.StateFailed, states.get()[len(states.get())-1])
}

func TestRunCancelKillsProcessAndSealsSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	pr, pw := io.Pipe()
	defer pw.Close()

	done := make(chan error, 1)
	go func() {
		_, err := shRunner().Run(ctx, Job{
			Inputs: []io.ReadCloser{pr},
			Args:   []string{"-c", "while true; do echo tick; sleep 0.02; done"},
			Sink:   out,
		})
		done <- err
	}()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "tick") }, 5*time.Second, 10*time.Millisecond)
	cancel()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not return after cancel")
	}
	var ce *model.CancelledError
	require.ErrorAs(t, err, &ce)

	n := len(out.String())
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, n, len(out.String()), "sink must not receive bytes after cancellation")
}

func TestRunAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := &trackedReader{Reader: strings.NewReader("x")}

	_, err := shRunner().Run(ctx, Job{Inputs: []io.ReadCloser{in}, Args: []string{"-c", "true"}, Sink: io.Discard})
	var ce *model.CancelledError
	require.ErrorAs(t, err, &ce)
	assert.True(t, in.isClosed())
}

func TestRunMissingBinary(t *testing.T) {
	in := &trackedReader{Reader: strings.NewReader("x")}
	_, err := NewRunner("/nonexistent/ffmpeg", time.Second).Run(context.Background(), Job{
		Inputs: []io.ReadCloser{in},
		Sink:   io.Discard,
	})
	var te *model.TranscodeError
	require.ErrorAs(t, err, &te)
	assert.True(t, in.isClosed())
}
