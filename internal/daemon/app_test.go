// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tubemux/internal/log"
)

type fakeManager struct {
	startErr error
	hooks    []string
	started  atomic.Bool
	stopped  atomic.Bool
}

func (m *fakeManager) Start(ctx context.Context) error {
	m.started.Store(true)
	if m.startErr != nil {
		return m.startErr
	}
	<-ctx.Done()
	return nil
}

func (m *fakeManager) Shutdown(context.Context) error {
	m.stopped.Store(true)
	return nil
}

func (m *fakeManager) RegisterShutdownHook(name string, _ ShutdownHook) {
	m.hooks = append(m.hooks, name)
}

func (m *fakeManager) Addr() net.Addr { return nil }

func TestAppRequiresManager(t *testing.T) {
	app := NewApp(log.WithComponent("test"), nil, nil)
	require.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}

func TestAppStopsOnCancel(t *testing.T) {
	mgr := &fakeManager{}
	app := NewApp(log.WithComponent("test"), mgr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, mgr.started.Load, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestAppPropagatesManagerError(t *testing.T) {
	boom := errors.New("bind failed")
	mgr := &fakeManager{startErr: boom}
	app := NewApp(log.WithComponent("test"), mgr, nil)

	require.ErrorIs(t, app.Run(context.Background()), boom)
	assert.True(t, mgr.stopped.Load())
}

func TestAppRunsRuntimeSubsystems(t *testing.T) {
	holder, _ := loadHolder(t, "outputDir: \""+t.TempDir()+"\"\nadmission:\n  maxCpuPercent: 50\n  sampleInterval: 10ms\n")
	rt, err := Bootstrap(context.Background(), holder)
	require.NoError(t, err)

	mgr := &fakeManager{}
	app := NewApp(log.WithComponent("test"), mgr, rt)
	var samples atomic.Int32
	app.cpuProvider = func(context.Context) (float64, error) {
		samples.Add(1)
		return 99, nil
	}
	app.reloadSignal = nil

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		ok, _ := rt.Admission.CanAdmit(ctx)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"runtime"}, mgr.hooks)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, samples.Load(), int32(5))
	_ = rt.Close(context.Background())
}
