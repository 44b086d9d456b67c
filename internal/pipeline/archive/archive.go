// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package archive streams a ZIP whose entries are produced concurrently.
//
// Every entry is spooled to a temporary file by its producer and framed
// into the shared zip.Writer only when the producer closes its slot, so
// entries appear in completion order and the output is a valid streaming
// ZIP at every point.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ManuGH/tubemux/internal/metrics"
)

var (
	// ErrOpenSlots is returned by Finalize while producers are still writing.
	ErrOpenSlots = errors.New("archive has open slots")
	// ErrFinalized is returned once the central directory has been written.
	ErrFinalized = errors.New("archive already finalized")
	// ErrSlotClosed is returned when a slot is used after Close or Abort.
	ErrSlotClosed = errors.New("slot already closed")
)

// Options configures an Aggregator.
type Options struct {
	// Method is zip.Store (default) or zip.Deflate.
	Method uint16
	// TempDir holds spool files. Empty means os.TempDir().
	TempDir string
	// Clock stamps entry modification times.
	Clock func() time.Time
}

// Aggregator owns the ZIP stream written to one destination.
type Aggregator struct {
	opts Options

	mu        sync.Mutex
	zw        *zip.Writer
	open      int
	entries   int
	finalized bool
	err       error
}

// New starts an archive on w. Nothing is written until the first slot closes.
func New(w io.Writer, opts Options) *Aggregator {
	if opts.Method != zip.Deflate {
		opts.Method = zip.Store
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Aggregator{opts: opts, zw: zip.NewWriter(w)}
}

// Append opens a slot for one entry. Duplicate names are not rejected.
func (a *Aggregator) Append(name string) (*Slot, error) {
	if name == "" {
		return nil, errors.New("empty entry name")
	}
	a.mu.Lock()
	if a.finalized {
		a.mu.Unlock()
		return nil, ErrFinalized
	}
	a.open++
	a.mu.Unlock()

	f, err := os.CreateTemp(a.opts.TempDir, "tubemux-slot-*")
	if err != nil {
		a.release()
		return nil, fmt.Errorf("create spool for %s: %w", name, err)
	}
	return &Slot{a: a, name: name, spool: f}, nil
}

// Entries returns how many entries were framed so far.
func (a *Aggregator) Entries() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries
}

// Finalize writes the central directory. It fails with ErrOpenSlots while
// any slot is open and with ErrFinalized on a second call.
func (a *Aggregator) Finalize() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return ErrFinalized
	}
	if a.open > 0 {
		return fmt.Errorf("%w: %d", ErrOpenSlots, a.open)
	}
	a.finalized = true
	if a.err != nil {
		return a.err
	}
	if err := a.zw.Close(); err != nil {
		return fmt.Errorf("write central directory: %w", err)
	}
	return nil
}

func (a *Aggregator) release() {
	a.mu.Lock()
	a.open--
	a.mu.Unlock()
}

// frame copies a finished spool into the stream as one entry.
func (a *Aggregator) frame(name string, r io.Reader) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open--

	if a.err != nil {
		return a.err
	}
	w, err := a.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   a.opts.Method,
		Modified: a.opts.Clock(),
	})
	if err == nil {
		_, err = io.Copy(w, r)
	}
	if err != nil {
		// The stream is now torn; later entries cannot be framed.
		a.err = fmt.Errorf("frame %s: %w", name, err)
		return a.err
	}
	a.entries++
	return nil
}

// Slot is the producer side of one entry.
type Slot struct {
	a     *Aggregator
	name  string
	spool *os.File

	mu   sync.Mutex
	done bool
	size int64
}

// Name returns the entry name.
func (s *Slot) Name() string { return s.name }

func (s *Slot) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return 0, ErrSlotClosed
	}
	n, err := s.spool.Write(p)
	s.size += int64(n)
	return n, err
}

// Close frames the spooled bytes into the archive.
func (s *Slot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrSlotClosed
	}
	s.done = true
	defer s.discard()

	if _, err := s.spool.Seek(0, io.SeekStart); err != nil {
		s.a.release()
		metrics.IncArchiveEntry("aborted")
		return fmt.Errorf("rewind spool for %s: %w", s.name, err)
	}
	if err := s.a.frame(s.name, s.spool); err != nil {
		metrics.IncArchiveEntry("aborted")
		return err
	}
	metrics.IncArchiveEntry("written")
	return nil
}

// Abort drops the entry. It is a no-op after Close.
func (s *Slot) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.discard()
	s.a.release()
	metrics.IncArchiveEntry("aborted")
}

func (s *Slot) discard() {
	_ = s.spool.Close()
	_ = os.Remove(s.spool.Name())
}
