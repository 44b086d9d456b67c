// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/tubemux/internal/admission"
	"github.com/ManuGH/tubemux/internal/log"
)

// App owns the long-lived runtime lifecycle (watchers, reload wiring,
// samplers, relay) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	rt           *Runtime
	reloadSignal os.Signal
	cpuProvider  admission.CPUPercentProvider
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, manager Manager, rt *Runtime) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		rt:           rt,
		reloadSignal: syscall.SIGHUP,
		cpuProvider:  admission.ReadCPUPercent,
	}
}

// Run starts all owned background subsystems and blocks until ctx is
// cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.rt != nil {
		a.manager.RegisterShutdownHook("runtime", a.rt.Close)
		a.startRuntime(ctx, g)
	}

	// Main server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

func (a *App) startRuntime(ctx context.Context, g *errgroup.Group) {
	holder := a.rt.Holder

	// Config watcher is best-effort: a failing watcher does not stop the daemon.
	if holder != nil {
		g.Go(func() error {
			if err := holder.Watch(ctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
			}
			return nil
		})
	}

	// SIGHUP trigger for manual reload.
	if holder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(log.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := holder.Reload(); err != nil {
						a.logger.Warn().
							Err(err).
							Str(log.FieldEvent, "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	if a.rt.Admission != nil && holder != nil {
		interval := holder.Get().Admission.SampleInterval
		g.Go(func() error {
			return admission.RunCPUSampler(ctx, a.rt.Admission, interval, a.cpuProvider)
		})
	}

	// The relay is best-effort: without it progress stays process-local.
	if a.rt.Relay != nil {
		g.Go(func() error {
			if err := a.rt.Relay.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error().Err(err).Str(log.FieldEvent, "progress.relay_failed").Msg("progress relay stopped")
			}
			return nil
		})
	}
}
