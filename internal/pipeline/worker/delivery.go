// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/tubemux/internal/fsutil"
	"github.com/ManuGH/tubemux/internal/log"
	"github.com/ManuGH/tubemux/internal/pipeline/archive"
	"github.com/ManuGH/tubemux/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/tubemux/internal/pipeline/model"
	"github.com/ManuGH/tubemux/internal/source"
)

// ReportEntry is the archive entry listing failed items.
const ReportEntry = "_report.json"

// errSinkExpired is returned by writes after the batch deadline claimed
// the response.
var errSinkExpired = errors.New("response expired")

// responseWriter counts and flushes body bytes, and lets the batch
// deadline claim the response while nothing has been sent yet.
type responseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu      sync.Mutex
	written int64
	expired bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w: w, rc: http.NewResponseController(w)}
}

func (r *responseWriter) Header() http.Header { return r.w.Header() }

func (r *responseWriter) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.expired {
		return 0, errSinkExpired
	}
	n, err := r.w.Write(p)
	r.written += int64(n)
	if err == nil {
		_ = r.rc.Flush()
	}
	return n, err
}

// Started reports whether any body byte was written.
func (r *responseWriter) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written > 0
}

// expire claims the response for an error answer. It fails once bytes
// have been written.
func (r *responseWriter) expire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.written > 0 {
		return false
	}
	r.expired = true
	return true
}

// ContentDisposition builds an attachment header carrying an ASCII
// fallback name and the RFC 5987 encoded UTF-8 name.
func ContentDisposition(filename string) string {
	return fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", asciiFallback(filename), encodeRFC5987(filename))
}

func asciiFallback(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('_')
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}

// ArchiveName is the download name of a multi-item batch.
func ArchiveName(kind model.Kind, format model.Format, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d.zip", kind, format, at.UnixMilli())
}

func itemName(md source.Metadata, f model.Format) (base, ext string) {
	return fsutil.SanitizeFilename(md.Title), f.Ext()
}

// streamSink writes one item straight into the response.
type streamSink struct {
	*responseWriter
	name string
}

func (s streamSink) Commit() (string, error) { return s.name, nil }
func (s streamSink) Abort()                  {}

// runSingle streams one item. Headers are set once the source resolved and
// before the transcoder starts.
func (o *Orchestrator) runSingle(ctx context.Context, cfg Config, b Batch, t *model.Task, out *responseWriter) error {
	err := o.runItem(ctx, cfg, t, func(md source.Metadata) (itemSink, error) {
		base, ext := itemName(md, b.Format)
		name := base + ext
		h := out.Header()
		h.Set("Content-Type", b.Format.ContentType())
		h.Set("Content-Disposition", ContentDisposition(name))
		h.Set("X-Content-Type-Options", "nosniff")
		return streamSink{responseWriter: out, name: name}, nil
	})
	return err
}

type slotSink struct{ *archive.Slot }

func (s slotSink) Commit() (string, error) { return s.Name(), s.Close() }

// runArchive streams every item as an entry of one ZIP.
func (o *Orchestrator) runArchive(ctx context.Context, cfg Config, b Batch, tasks []*model.Task, conc int, out *responseWriter) error {
	h := out.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", ContentDisposition(ArchiveName(b.Kind, b.Format, time.Now())))
	h.Set("X-Content-Type-Options", "nosniff")

	agg := archive.New(out, archive.Options{TempDir: cfg.SpoolDir})

	o.runAll(ctx, conc, tasks, func(ctx context.Context, t *model.Task) error {
		return o.runItem(ctx, cfg, t, func(md source.Metadata) (itemSink, error) {
			base, ext := itemName(md, b.Format)
			slot, err := agg.Append(base + ext)
			if err != nil {
				return nil, err
			}
			return slotSink{slot}, nil
		})
	})

	logger := log.WithComponentFromContext(ctx, "worker")
	if ctx.Err() != nil {
		// Nobody is reading; skip the central directory.
		return nil
	}
	if err := writeReport(agg, b.ID, tasks); err != nil {
		logger.Warn().Err(err).Msg("failed to add batch report")
	}
	if err := agg.Finalize(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	logger.Info().
		Str(log.FieldEvent, "batch.finalized").
		Int("entries", agg.Entries()).
		Msg("archive finalized")
	return nil
}

type batchReport struct {
	BatchID string             `json:"batch_id"`
	Failed  []model.ItemResult `json:"failed"`
}

// writeReport adds ReportEntry when at least one item failed.
func writeReport(agg *archive.Aggregator, batchID string, tasks []*model.Task) error {
	rep := batchReport{BatchID: batchID}
	for _, t := range tasks {
		if r := t.Result(); r.State != model.StateCompleted {
			rep.Failed = append(rep.Failed, r)
		}
	}
	if len(rep.Failed) == 0 {
		return nil
	}
	slot, err := agg.Append(ReportEntry)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(slot)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		slot.Abort()
		return err
	}
	return slot.Close()
}

type fileSink struct{ *ffmpeg.FileSink }

func (f fileSink) Commit() (string, error) { return f.Name(), f.FileSink.Commit() }

// runSave writes every item into the output directory.
func (o *Orchestrator) runSave(ctx context.Context, cfg Config, b Batch, tasks []*model.Task, conc int) error {
	if b.OutputDir == "" {
		return &model.ValidationError{Field: "outputDir", Reason: "save delivery needs an output directory"}
	}
	if err := fsutil.EnsureDir(b.OutputDir); err != nil {
		return fmt.Errorf("prepare output dir: %w", err)
	}
	o.runAll(ctx, conc, tasks, func(ctx context.Context, t *model.Task) error {
		return o.runItem(ctx, cfg, t, func(md source.Metadata) (itemSink, error) {
			base, ext := itemName(md, b.Format)
			fs, err := ffmpeg.NewFileSink(b.OutputDir, base, ext)
			if err != nil {
				return nil, err
			}
			return fileSink{fs}, nil
		})
	})
	return nil
}
