// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ManuGH/tubemux/internal/fsutil"
)

// ErrSealed is returned by a GuardedWriter after Seal.
var ErrSealed = errors.New("sink sealed")

// GuardedWriter forwards writes until sealed. Seal waits for an in-flight
// write, so once it returns nothing else reaches the underlying writer.
type GuardedWriter struct {
	mu      sync.Mutex
	w       io.Writer
	sealed  bool
	written int64
}

// NewGuardedWriter wraps w.
func NewGuardedWriter(w io.Writer) *GuardedWriter {
	return &GuardedWriter{w: w}
}

func (g *GuardedWriter) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sealed {
		return 0, ErrSealed
	}
	n, err := g.w.Write(p)
	g.written += int64(n)
	return n, err
}

// Seal stops all further writes.
func (g *GuardedWriter) Seal() {
	g.mu.Lock()
	g.sealed = true
	g.mu.Unlock()
}

// Written returns the number of bytes forwarded so far.
func (g *GuardedWriter) Written() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.written
}

// pendingFile is a temp file that atomically replaces its target on commit.
type pendingFile interface {
	io.Writer
	commit() error
	cleanup() error
}

// FileSink writes one output file into a shared directory. The final name
// is reserved up front with a "(n)" suffix when taken; bytes go to a
// pending file that replaces the reservation on Commit.
type FileSink struct {
	path    string
	pending pendingFile
	mu      sync.Mutex
	done    bool
}

// NewFileSink reserves dir/base.ext (or the first free "base (n).ext").
func NewFileSink(dir, base, ext string) (*FileSink, error) {
	path, err := fsutil.ReserveUnique(dir, base, ext)
	if err != nil {
		return nil, err
	}
	pf, err := openPending(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("open pending file for %s: %w", filepath.Base(path), err)
	}
	return &FileSink{path: path, pending: pf}, nil
}

func (s *FileSink) Write(p []byte) (int, error) { return s.pending.Write(p) }

// Path is the final location of the file.
func (s *FileSink) Path() string { return s.path }

// Name is the final base name of the file.
func (s *FileSink) Name() string { return filepath.Base(s.path) }

// Commit makes the file visible under its reserved name.
func (s *FileSink) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return errors.New("sink already finished")
	}
	s.done = true
	if err := s.pending.commit(); err != nil {
		_ = s.pending.cleanup()
		_ = os.Remove(s.path)
		return fmt.Errorf("commit %s: %w", s.Name(), err)
	}
	return nil
}

// Abort discards the pending bytes and releases the reserved name.
// It is a no-op after Commit.
func (s *FileSink) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	_ = s.pending.cleanup()
	_ = os.Remove(s.path)
}
