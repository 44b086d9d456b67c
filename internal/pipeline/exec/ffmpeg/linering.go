// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bytes"
	"sync"
)

// maxPartial caps a line that never sees a newline.
const maxPartial = 4096

// LineRing keeps the last N lines written to it. Partial lines are held
// until their newline arrives.
type LineRing struct {
	mu      sync.Mutex
	lines   []string
	head    int
	count   int
	partial []byte
}

// NewLineRing creates a LineRing with the specified capacity.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Write implements io.Writer.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := p
	for len(buf) > 0 {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			r.partial = append(r.partial, buf...)
			if len(r.partial) >= maxPartial {
				r.push(r.partial)
				r.partial = r.partial[:0]
			}
			break
		}
		line := buf[:i]
		if len(r.partial) > 0 {
			line = append(r.partial, line...)
			r.partial = r.partial[:0]
		}
		r.push(line)
		buf = buf[i+1:]
	}
	return len(p), nil
}

func (r *LineRing) push(line []byte) {
	s := string(bytes.TrimRight(line, "\r"))
	if s == "" {
		return
	}
	r.lines[r.head] = s
	r.head = (r.head + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// LastN returns up to n of the most recent lines, oldest first, including
// a pending partial line.
func (r *LineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, r.count+1)
	start := (r.head - r.count + len(r.lines)) % len(r.lines)
	for i := 0; i < r.count; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	if len(r.partial) > 0 {
		out = append(out, string(r.partial))
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
