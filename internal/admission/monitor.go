// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package admission decides whether new batches may start given host load.
package admission

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/tubemux/internal/metrics"
)

// Reason is the admission decision label. Values are lowercase for stable
// PromQL queries.
type Reason string

const (
	ReasonAdmitted     Reason = "admitted"
	ReasonCPUSaturated Reason = "cpu_saturated"
	ReasonDisabled     Reason = "disabled"
	ReasonWarmingUp    Reason = "warming_up"
)

const (
	defaultWindow     = 30 * time.Second
	defaultMinSamples = 5
	// saturatedRatio is the share of window samples above the threshold
	// that rejects new work.
	saturatedRatio = 0.5
)

type cpuSample struct {
	at      time.Time
	percent float64
}

// Monitor keeps a sliding window of host CPU samples. A zero or negative
// threshold admits everything.
type Monitor struct {
	mu         sync.RWMutex
	threshold  float64
	window     time.Duration
	minSamples int
	samples    []cpuSample
	clock      func() time.Time
}

// NewMonitor creates a monitor rejecting work while at least half of the
// samples in window exceed maxCPUPercent.
func NewMonitor(maxCPUPercent float64, window time.Duration) *Monitor {
	if window <= 0 {
		window = defaultWindow
	}
	return &Monitor{
		threshold:  maxCPUPercent,
		window:     window,
		minSamples: defaultMinSamples,
		clock:      time.Now,
	}
}

// SetThreshold changes the CPU limit. It is safe to call while serving.
func (m *Monitor) SetThreshold(maxCPUPercent float64) {
	m.mu.Lock()
	m.threshold = maxCPUPercent
	m.mu.Unlock()
}

// ObserveCPU records one utilisation sample in percent (0-100).
func (m *Monitor) ObserveCPU(percent float64) {
	m.observeAt(percent, m.clock())
}

func (m *Monitor) observeAt(percent float64, at time.Time) {
	metrics.HostCPUPercent.Set(percent)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, cpuSample{at: at, percent: percent})
	m.pruneLocked(at)
}

func (m *Monitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-m.window)
	i := 0
	for i < len(m.samples) && m.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.samples = append(m.samples[:0], m.samples[i:]...)
	}
}

// CanAdmit reports whether a new batch may start. Too few samples admit:
// an unmeasured host is not assumed to be saturated.
func (m *Monitor) CanAdmit(_ context.Context) (bool, Reason) {
	now := m.clock()
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.threshold <= 0 {
		return true, ReasonDisabled
	}
	cutoff := now.Add(-m.window)
	var total, over int
	for _, s := range m.samples {
		if s.at.Before(cutoff) {
			continue
		}
		total++
		if s.percent > m.threshold {
			over++
		}
	}
	if total < m.minSamples {
		return true, ReasonWarmingUp
	}
	if float64(over)/float64(total) >= saturatedRatio {
		return false, ReasonCPUSaturated
	}
	return true, ReasonAdmitted
}
