// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package progress

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func readDataFrame(t *testing.T, sc *bufio.Scanner) Event {
	t.Helper()
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		return ev
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return Event{}
}

func TestServeSSEStreamsEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := NewHub(8)
	srv := httptest.NewServer(ServeSSE(h, time.Hour))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return h.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	sc := bufio.NewScanner(resp.Body)
	h.Broadcast(SuccessEvent("b1", "https://www.youtube.com/watch?v=a", "a.mp3"))
	h.Broadcast(ErrorEvent("b1", "https://www.youtube.com/watch?v=b", "video unavailable"))

	first := readDataFrame(t, sc)
	assert.Equal(t, EventSuccess, first.Type)
	assert.Equal(t, "a.mp3", first.Filename)
	second := readDataFrame(t, sc)
	assert.Equal(t, EventError, second.Type)
	assert.Equal(t, "video unavailable", second.Message)

	cancel()
	require.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, 5*time.Millisecond,
		"listener must be removed after disconnect")
	srv.CloseClientConnections()
}

func TestServeSSEHeartbeat(t *testing.T) {
	h := NewHub(1)
	srv := httptest.NewServer(ServeSSE(h, 20*time.Millisecond))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if sc.Text() == ": heartbeat" {
			return
		}
	}
	t.Fatal("no heartbeat received")
}
