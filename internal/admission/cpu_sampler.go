// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package admission

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/cpu"

	"github.com/ManuGH/tubemux/internal/log"
)

const defaultCPUSampleInterval = 2 * time.Second

// CPUPercentProvider returns the host CPU utilisation in percent.
type CPUPercentProvider func(ctx context.Context) (float64, error)

// ReadCPUPercent measures total CPU utilisation since the previous call.
func ReadCPUPercent(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pct) == 0 {
		return 0, errors.New("cpu percent: no values")
	}
	return pct[0], nil
}

// RunCPUSampler feeds CPU samples into m until ctx is cancelled. It takes
// one sample immediately to avoid a startup gap.
func RunCPUSampler(ctx context.Context, m *Monitor, interval time.Duration, provider CPUPercentProvider) error {
	if m == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultCPUSampleInterval
	}
	if provider == nil {
		provider = ReadCPUPercent
	}
	logger := log.WithComponent("admission")

	failures := 0
	sample := func() {
		pct, err := provider(ctx)
		if err != nil {
			failures++
			if failures == 1 {
				logger.Warn().Err(err).Msg("cpu sampling failed")
			}
			return
		}
		failures = 0
		m.ObserveCPU(pct)
	}

	sample()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sample()
		}
	}
}
