// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/tubemux/internal/pipeline/fsm"
)

// State is the lifecycle position of one Task.
type State string

const (
	StatePending   State = "pending"
	StateAcquiring State = "acquiring"
	StatePiping    State = "piping"
	StateMuxing    State = "muxing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal returns true if the state is a final state.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Event drives Task transitions.
type Event string

const (
	EventAcquire  Event = "acquire"
	EventPipe     Event = "pipe"
	EventMux      Event = "mux"
	EventComplete Event = "complete"
	EventFail     Event = "fail"
	EventCancel   Event = "cancel"
)

var taskTransitions = []fsm.Transition[State, Event]{
	{From: StatePending, Event: EventAcquire, To: StateAcquiring},
	{From: StateAcquiring, Event: EventPipe, To: StatePiping},
	{From: StatePiping, Event: EventMux, To: StateMuxing},
	{From: StateMuxing, Event: EventComplete, To: StateCompleted},

	{From: StatePending, Event: EventFail, To: StateFailed},
	{From: StateAcquiring, Event: EventFail, To: StateFailed},
	{From: StatePiping, Event: EventFail, To: StateFailed},
	{From: StateMuxing, Event: EventFail, To: StateFailed},

	{From: StatePiping, Event: EventCancel, To: StateCancelled},
	{From: StateMuxing, Event: EventCancel, To: StateCancelled},
}

// Task is one unit of work: one identifier through acquisition,
// transcoding and delivery.
type Task struct {
	ID      string
	Source  string
	Kind    Kind
	Format  Format
	Quality string

	machine *fsm.Machine[State, Event]

	mu        sync.Mutex
	err       error
	filename  string
	startedAt time.Time
	endedAt   time.Time
}

// NewTask creates a Pending task.
func NewTask(id, source string, kind Kind, format Format, quality string) *Task {
	m, err := fsm.New(StatePending, taskTransitions)
	if err != nil {
		panic(err) // static table
	}
	return &Task{ID: id, Source: source, Kind: kind, Format: format, Quality: quality, machine: m}
}

// OnTransition registers a hook fired after each state change.
func (t *Task) OnTransition(fn func(from, to State)) {
	t.machine.OnChange(func(from, to State, _ Event) { fn(from, to) })
}

// State returns the current state.
func (t *Task) State() State { return t.machine.State() }

// Fire applies ev.
func (t *Task) Fire(ev Event) error {
	to, err := t.machine.Fire(ev)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case to == StateAcquiring:
		t.startedAt = time.Now()
	case to.IsTerminal():
		t.endedAt = time.Now()
	}
	return nil
}

// Finish moves the task into its terminal state according to err.
// Cancellation during acquisition counts as a failure since no process
// exists yet to cancel.
func (t *Task) Finish(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()

	if err == nil {
		_ = t.Fire(EventComplete)
		return
	}
	var ce *CancelledError
	if errors.As(err, &ce) && t.machine.Can(EventCancel) {
		_ = t.Fire(EventCancel)
		return
	}
	_ = t.Fire(EventFail)
}

// SetFilename records the delivered file or entry name.
func (t *Task) SetFilename(name string) {
	t.mu.Lock()
	t.filename = name
	t.mu.Unlock()
}

// Filename returns the delivered file or entry name.
func (t *Task) Filename() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filename
}

// Err returns the terminal error, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Duration returns the time spent between acquisition start and the terminal state.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() || t.endedAt.IsZero() {
		return 0
	}
	return t.endedAt.Sub(t.startedAt)
}

// Result summarises the task for a batch response.
func (t *Task) Result() ItemResult {
	r := ItemResult{URL: t.Source, State: t.State(), Filename: t.Filename()}
	if err := t.Err(); err != nil {
		r.Error = err.Error()
		r.Reason = Classify(err)
		r.Filename = ""
	}
	return r
}
