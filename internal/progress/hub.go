// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package progress fans per-item completion events out to live listeners.
package progress

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ManuGH/tubemux/internal/log"
	"github.com/ManuGH/tubemux/internal/metrics"
)

// EventType distinguishes item outcomes.
type EventType string

const (
	EventSuccess EventType = "success"
	EventError   EventType = "error"
)

// Event reports one finished item.
type Event struct {
	Type     EventType `json:"type"`
	Filename string    `json:"filename,omitempty"`
	Message  string    `json:"message,omitempty"`
	URL      string    `json:"url,omitempty"`
	BatchID  string    `json:"batch_id,omitempty"`
}

// SuccessEvent builds a success event.
func SuccessEvent(batchID, url, filename string) Event {
	return Event{Type: EventSuccess, BatchID: batchID, URL: url, Filename: filename}
}

// ErrorEvent builds an error event.
func ErrorEvent(batchID, url, message string) Event {
	return Event{Type: EventError, BatchID: batchID, URL: url, Message: message}
}

// DefaultBuffer is the per-listener queue length.
const DefaultBuffer = 64

// Hub is a broadcast point with bounded per-listener queues. A listener
// that falls behind loses events; it never slows the broadcaster.
type Hub struct {
	buffer int

	mu         sync.RWMutex
	listeners  map[string]chan Event
	forwarders []func(Event)
	closed     bool
}

// NewHub creates a hub whose listeners buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{buffer: buffer, listeners: make(map[string]chan Event)}
}

// Subscribe registers a listener. The channel is closed by Unsubscribe or Close.
func (h *Hub) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.listeners[id] = ch
	metrics.ProgressListeners.Set(float64(len(h.listeners)))
	return id, ch
}

// Unsubscribe removes a listener. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.listeners[id]
	if !ok {
		return
	}
	delete(h.listeners, id)
	close(ch)
	metrics.ProgressListeners.Set(float64(len(h.listeners)))
}

// Len returns the number of listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Broadcast delivers ev to every local listener and hands it to any
// forwarders (see RedisRelay).
func (h *Hub) Broadcast(ev Event) {
	metrics.ProgressEventsTotal.WithLabelValues(string(ev.Type)).Inc()
	h.deliver(ev)

	h.mu.RLock()
	fwd := h.forwarders
	h.mu.RUnlock()
	for _, fn := range fwd {
		fn(ev)
	}
}

// deliver pushes ev to local listeners only.
func (h *Hub) deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.listeners {
		select {
		case ch <- ev:
		default:
			metrics.IncProgressDrop("listener_full")
			log.L().Debug().
				Str(log.FieldListener, id).
				Str(log.FieldEvent, string(ev.Type)).
				Msg("progress listener full, event dropped")
		}
	}
}

func (h *Hub) addForwarder(fn func(Event)) {
	h.mu.Lock()
	h.forwarders = append(h.forwarders, fn)
	h.mu.Unlock()
}

// Close disconnects every listener. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.listeners {
		close(ch)
		delete(h.listeners, id)
	}
	metrics.ProgressListeners.Set(0)
}
