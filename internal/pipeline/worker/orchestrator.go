// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package worker drives batches of conversion tasks from resolution to
// delivery.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/tubemux/internal/log"
	"github.com/ManuGH/tubemux/internal/metrics"
	"github.com/ManuGH/tubemux/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/tubemux/internal/pipeline/limiter"
	"github.com/ManuGH/tubemux/internal/pipeline/model"
	"github.com/ManuGH/tubemux/internal/progress"
	"github.com/ManuGH/tubemux/internal/resilience"
	"github.com/ManuGH/tubemux/internal/source"
	"github.com/ManuGH/tubemux/internal/telemetry"
)

// ErrResponseCommitted marks a batch error that happened after response
// bytes were sent. The HTTP status can no longer change.
var ErrResponseCommitted = errors.New("response already committed")

// Resolver opens source streams for a task.
type Resolver interface {
	ResolveAudio(ctx context.Context, raw string) (*source.Resolved, error)
	ResolveMux(ctx context.Context, raw, quality string, container model.Format) (*source.Resolved, error)
}

// Transcoder runs one transcoder job.
type Transcoder interface {
	Run(ctx context.Context, job ffmpeg.Job) (ffmpeg.Result, error)
}

// Config holds the per-batch knobs. It is read once at the start of each
// batch, so a reload affects the next batch only.
type Config struct {
	TaskTimeout  time.Duration
	BatchTimeout time.Duration
	Retry        resilience.RetryPolicy
	// RetryVideo enables acquisition retry for video tasks.
	RetryVideo bool
	Encode     ffmpeg.EncodeOptions
	// SpoolDir holds archive spool files.
	SpoolDir string
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		TaskTimeout:  10 * time.Minute,
		BatchTimeout: 30 * time.Minute,
		Retry:        resilience.DefaultRetryPolicy(),
	}
}

// Batch is one conversion request.
type Batch struct {
	ID          string
	Identifiers []string
	Kind        model.Kind
	Format      model.Format
	Quality     string
	// Concurrency bounds this batch below the shared limiter. Zero means
	// the limiter's capacity.
	Concurrency int
	// Delivery is DeliveryStream or DeliverySave. Streams with more than
	// one identifier become archives.
	Delivery  model.Delivery
	Response  http.ResponseWriter
	OutputDir string
}

// Orchestrator composes resolver, limiter, transcoder, archive and hub.
type Orchestrator struct {
	resolver Resolver
	runner   Transcoder
	limiter  *limiter.Limiter
	hub      *progress.Hub
	cfg      atomic.Pointer[Config]
	tracer   trace.Tracer
}

// New builds an orchestrator. hub may be nil.
func New(resolver Resolver, runner Transcoder, lim *limiter.Limiter, hub *progress.Hub, cfg Config) *Orchestrator {
	o := &Orchestrator{
		resolver: resolver,
		runner:   runner,
		limiter:  lim,
		hub:      hub,
		tracer:   telemetry.Tracer("tubemux/worker"),
	}
	o.SetConfig(cfg)
	return o
}

// SetConfig replaces the configuration used by subsequent batches.
func (o *Orchestrator) SetConfig(cfg Config) {
	o.cfg.Store(&cfg)
}

// Config returns the current configuration.
func (o *Orchestrator) Config() Config { return *o.cfg.Load() }

// Capacity reports the shared limiter bound.
func (o *Orchestrator) Capacity() int { return o.limiter.Capacity() }

// Run executes b. The returned error is non-nil when the batch as a whole
// failed; it wraps ErrResponseCommitted if bytes had already reached
// b.Response. Per-item failures are reported in the result only.
func (o *Orchestrator) Run(ctx context.Context, b Batch) (*model.BatchResult, error) {
	cfg := o.Config()
	if len(b.Identifiers) == 0 {
		return nil, &model.ValidationError{Field: "urls", Reason: "at least one url is required"}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	delivery := b.Delivery
	if delivery == "" || delivery == model.DeliveryArchive {
		delivery = model.DeliveryStream
	}
	if delivery == model.DeliveryStream && len(b.Identifiers) > 1 {
		delivery = model.DeliveryArchive
	}
	if delivery != model.DeliverySave && b.Response == nil {
		return nil, errors.New("stream delivery requires a response writer")
	}

	conc := o.batchConcurrency(b.Concurrency, len(b.Identifiers))

	ctx = log.ContextWithBatchID(ctx, b.ID)
	ctx, span := o.tracer.Start(ctx, "batch.run",
		trace.WithAttributes(telemetry.BatchAttributes(b.ID, string(delivery), len(b.Identifiers))...))
	defer span.End()
	logger := log.WithComponentFromContext(ctx, "worker")

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out *responseWriter
	if b.Response != nil && delivery != model.DeliverySave {
		out = newResponseWriter(b.Response)
	}

	var timedOut atomic.Bool
	if cfg.BatchTimeout > 0 {
		timer := time.AfterFunc(cfg.BatchTimeout, func() {
			if out != nil && !out.expire() {
				batchTimeoutsTotal.WithLabelValues("true").Inc()
				logger.Warn().Dur("after", cfg.BatchTimeout).Msg("batch deadline passed while streaming, letting it finish")
				return
			}
			batchTimeoutsTotal.WithLabelValues("false").Inc()
			timedOut.Store(true)
			cancel()
		})
		defer timer.Stop()
	}

	tasks := make([]*model.Task, len(b.Identifiers))
	for i, raw := range b.Identifiers {
		t := model.NewTask(fmt.Sprintf("%s-%d", b.ID, i), raw, b.Kind, b.Format, b.Quality)
		kind := b.Kind
		t.OnTransition(func(from, to model.State) { recordTransition(kind, from, to) })
		tasks[i] = t
	}

	logger.Info().
		Str(log.FieldEvent, "batch.started").
		Str(log.FieldKind, string(b.Kind)).
		Str(log.FieldFormat, string(b.Format)).
		Str("delivery", string(delivery)).
		Int("items", len(tasks)).
		Int("concurrency", conc).
		Msg("batch started")

	var err error
	switch delivery {
	case model.DeliveryStream:
		err = o.runSingle(batchCtx, cfg, b, tasks[0], out)
	case model.DeliveryArchive:
		err = o.runArchive(batchCtx, cfg, b, tasks, conc, out)
	case model.DeliverySave:
		err = o.runSave(batchCtx, cfg, b, tasks, conc)
	default:
		err = &model.ValidationError{Field: "delivery", Reason: fmt.Sprintf("unknown delivery %q", delivery)}
	}

	result := &model.BatchResult{ID: b.ID, Kind: b.Kind, Format: b.Format, Concurrency: conc}
	for _, t := range tasks {
		result.Items = append(result.Items, t.Result())
	}

	switch {
	case timedOut.Load():
		err = &model.TimeoutError{Scope: "batch", After: cfg.BatchTimeout}
	case ctx.Err() != nil:
		err = &model.CancelledError{Err: ctx.Err()}
	}

	outcome := batchOutcome(result, err)
	metrics.RecordBatch(string(b.Kind), string(delivery), outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}

	logger.Info().
		Str(log.FieldEvent, "batch.finished").
		Str("outcome", outcome).
		Int("succeeded", result.Succeeded()).
		Int("failed", result.Failed()).
		Msg("batch finished")

	if err != nil && out != nil && out.Started() {
		return result, fmt.Errorf("%w: %w", ErrResponseCommitted, err)
	}
	return result, err
}

func (o *Orchestrator) batchConcurrency(requested, items int) int {
	c := o.limiter.Capacity()
	if requested > 0 && requested < c {
		c = requested
	}
	if items < c {
		c = items
	}
	return max(c, 1)
}

func batchOutcome(r *model.BatchResult, err error) string {
	switch {
	case err != nil:
		return model.Classify(err)
	case r.Failed() == 0:
		return "ok"
	case r.Succeeded() == 0:
		return "failed"
	default:
		return "partial"
	}
}

// runAll admits tasks in order from the calling goroutine: a batch-local
// slot first, then a place in the shared queue, so a batch never holds
// more than conc shared slots and items start in submission order.
func (o *Orchestrator) runAll(ctx context.Context, conc int, tasks []*model.Task, fn func(context.Context, *model.Task) error) {
	local := limiter.New(conc)
	var wg sync.WaitGroup
	for _, t := range tasks {
		release, err := local.Acquire(ctx)
		if err != nil {
			break
		}
		f := limiter.Submit(ctx, o.limiter, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx, t)
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-f.Done()
			release()
		}()
	}
	wg.Wait()

	// Submissions dropped while queued never ran.
	for _, t := range tasks {
		if !t.State().IsTerminal() {
			err := ctx.Err()
			if err == nil {
				err = errors.New("task was not scheduled")
			}
			o.settle(ctx, t, &model.CancelledError{Err: err})
		}
	}
}

// settle moves t to its terminal state and publishes the outcome.
func (o *Orchestrator) settle(ctx context.Context, t *model.Task, err error) {
	t.Finish(err)
	res := t.Result()
	metrics.RecordTask(string(t.Kind), res.Reason, t.Duration().Seconds())

	logger := log.WithComponentFromContext(ctx, "worker")
	batchID := log.BatchIDFromContext(ctx)
	if err != nil {
		ev := logger.Warn()
		if model.Classify(err) == model.ReasonCancelled {
			ev = logger.Debug()
		}
		ev.Err(err).
			Str(log.FieldEvent, "task.failed").
			Str(log.FieldTaskID, t.ID).
			Str(log.FieldSource, t.Source).
			Str(log.FieldState, string(res.State)).
			Str("reason", res.Reason).
			Msg("task failed")
		if o.hub != nil {
			o.hub.Broadcast(progress.ErrorEvent(batchID, t.Source, err.Error()))
		}
		return
	}
	logger.Info().
		Str(log.FieldEvent, "task.completed").
		Str(log.FieldTaskID, t.ID).
		Str(log.FieldFilename, res.Filename).
		Int64(log.FieldDuration, t.Duration().Milliseconds()).
		Msg("task completed")
	if o.hub != nil {
		o.hub.Broadcast(progress.SuccessEvent(batchID, t.Source, res.Filename))
	}
}

// itemSink receives one item's transcoded bytes.
type itemSink interface {
	io.Writer
	// Commit publishes the item and returns its delivered name.
	Commit() (string, error)
	Abort()
}

type sinkFactory func(md source.Metadata) (itemSink, error)

// runItem takes one task from acquisition to a committed sink. The
// terminal state and hub event are handled here.
func (o *Orchestrator) runItem(ctx context.Context, cfg Config, t *model.Task, newSink sinkFactory) (err error) {
	ctx = log.ContextWithTaskID(ctx, t.ID)
	ctx, span := o.tracer.Start(ctx, "task.run",
		trace.WithAttributes(telemetry.TaskAttributes(t.ID, string(t.Kind), string(t.Format), t.Quality)...))
	defer span.End()

	taskCtx, cancelTask := context.WithCancelCause(ctx)
	defer cancelTask(nil)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
		if err != nil {
			// A fired task deadline surfaces as a plain cancellation below it.
			var te *model.TimeoutError
			if cause := context.Cause(taskCtx); errors.As(cause, &te) && ctx.Err() == nil {
				err = te
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, model.Classify(err))
		}
		o.settle(ctx, t, err)
	}()

	_ = t.Fire(model.EventAcquire)

	var deadline time.Time
	var acquireTimer *time.Timer
	if cfg.TaskTimeout > 0 {
		deadline = time.Now().Add(cfg.TaskTimeout)
		acquireTimer = time.AfterFunc(cfg.TaskTimeout, func() {
			cancelTask(&model.TimeoutError{Scope: "task", After: cfg.TaskTimeout})
		})
		defer acquireTimer.Stop()
	}

	started := time.Now()
	resolved, err := o.acquire(taskCtx, cfg, t)
	if err != nil {
		acquireDuration.WithLabelValues(string(t.Kind), model.Classify(err)).Observe(time.Since(started).Seconds())
		return err
	}
	acquireDuration.WithLabelValues(string(t.Kind), "ok").Observe(time.Since(started).Seconds())

	handed := false
	defer func() {
		if !handed {
			_ = resolved.Close()
		}
	}()

	var jobTimeout time.Duration
	if acquireTimer != nil {
		if !acquireTimer.Stop() {
			return &model.TimeoutError{Scope: "task", After: cfg.TaskTimeout}
		}
		jobTimeout = time.Until(deadline)
		if jobTimeout <= 0 {
			return &model.TimeoutError{Scope: "task", After: cfg.TaskTimeout}
		}
	}

	args, err := buildArgs(t, resolved, cfg.Encode)
	if err != nil {
		return err
	}

	sink, err := newSink(resolved.Metadata)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}

	handed = true
	_, err = o.runner.Run(taskCtx, ffmpeg.Job{
		ID:      t.ID,
		Inputs:  resolved.Inputs(),
		Args:    args,
		Sink:    sink,
		Timeout: jobTimeout,
		OnState: func(s model.State) {
			switch s {
			case model.StatePiping:
				_ = t.Fire(model.EventPipe)
			case model.StateMuxing:
				_ = t.Fire(model.EventMux)
			}
		},
	})
	if err != nil {
		sink.Abort()
		return err
	}

	name, err := sink.Commit()
	if err != nil {
		return err
	}
	t.SetFilename(name)
	return nil
}

// acquire resolves and opens the task's streams. Audio acquisition is
// always retried; video only when RetryVideo is set.
func (o *Orchestrator) acquire(ctx context.Context, cfg Config, t *model.Task) (*source.Resolved, error) {
	policy := cfg.Retry
	if t.Kind == model.KindVideo && !cfg.RetryVideo {
		policy = resilience.NoRetry()
	}
	return resilience.RetryValue(ctx, policy, t.Source, func(ctx context.Context) (*source.Resolved, error) {
		if t.Kind == model.KindVideo {
			return o.resolver.ResolveMux(ctx, t.Source, t.Quality, t.Format)
		}
		return o.resolver.ResolveAudio(ctx, t.Source)
	})
}

func buildArgs(t *model.Task, r *source.Resolved, opts ffmpeg.EncodeOptions) ([]string, error) {
	if t.Kind == model.KindVideo {
		if r.Video == nil || r.Audio == nil {
			return nil, &model.FormatNotFoundError{Source: t.Source, Kind: "video", Requested: t.Quality, Available: r.Qualities}
		}
		return ffmpeg.BuildMuxArgs(ffmpeg.MuxSpec{
			Format:     t.Format,
			VideoCodec: r.Video.Format.VideoCodec,
			AudioCodec: r.Audio.Format.AudioCodec,
			Options:    opts,
		})
	}
	if r.Audio == nil {
		return nil, &model.FormatNotFoundError{Source: t.Source, Kind: "audio"}
	}
	return ffmpeg.BuildAudioArgs(ffmpeg.AudioSpec{
		Format:      t.Format,
		SourceCodec: r.Audio.Format.AudioCodec,
		Options:     opts,
	})
}
