// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package progress

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/tubemux/internal/metrics"
)

func TestBroadcastWithoutListenersIsNoop(t *testing.T) {
	h := NewHub(4)
	assert.NotPanics(t, func() { h.Broadcast(SuccessEvent("b", "u", "f.mp3")) })
	assert.Equal(t, 0, h.Len())
}

func TestBroadcastReachesEveryListener(t *testing.T) {
	h := NewHub(4)
	const m = 3
	chans := make([]<-chan Event, m)
	for i := range chans {
		_, chans[i] = h.Subscribe()
	}
	require.Equal(t, m, h.Len())

	ev := ErrorEvent("batch-1", "https://www.youtube.com/watch?v=x", "not found")
	h.Broadcast(ev)
	for _, ch := range chans {
		assert.Equal(t, ev, <-ch)
	}
}

func TestSlowListenerOnlyLosesItsOwnEvents(t *testing.T) {
	h := NewHub(2)
	_, slow := h.Subscribe()
	_, fast := h.Subscribe()

	before := testutil.ToFloat64(metrics.ProgressDroppedTotal.WithLabelValues("listener_full"))
	for i := 0; i < 3; i++ {
		h.Broadcast(SuccessEvent("b", "u", "f"))
		<-fast
	}
	assert.Len(t, slow, 2)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ProgressDroppedTotal.WithLabelValues("listener_full")))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(1)
	id, ch := h.Subscribe()
	h.Unsubscribe(id)
	h.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
}

func TestCloseDisconnectsListeners(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := NewHub(1)
	id, ch := h.Subscribe()
	h.Close()
	_, ok := <-ch
	assert.False(t, ok)
	h.Unsubscribe(id)

	_, late := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
