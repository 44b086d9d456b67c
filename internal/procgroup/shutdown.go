// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/tubemux/internal/metrics"
)

// Terminate sends SIGTERM to the group, waits up to grace for waitCh and
// escalates to SIGKILL. It consumes and returns the error from waitCh.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	signal(cmd, syscall.SIGTERM)

	select {
	case err := <-waitCh:
		recordWait(err, "")
		return err
	case <-time.After(grace):
		signal(cmd, syscall.SIGKILL)
		err := <-waitCh
		recordWait(err, "forced_")
		return err
	}
}

// ForceKill sends SIGKILL immediately and waits at most grace for waitCh.
// ok is false when the process was not reaped in time.
func ForceKill(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) (err error, ok bool) {
	if cmd == nil || cmd.Process == nil {
		return nil, true
	}
	signal(cmd, syscall.SIGKILL)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err = <-waitCh:
		recordWait(err, "forced_")
		return err, true
	case <-timer.C:
		metrics.IncProcWait("unreaped")
		return nil, false
	}
}

func signal(cmd *exec.Cmd, sig syscall.Signal) {
	name := "SIGTERM"
	if sig == syscall.SIGKILL {
		name = "SIGKILL"
	}
	if err := Kill(cmd, sig); err != nil {
		metrics.IncProcTerminate(name, "error")
		return
	}
	metrics.IncProcTerminate(name, "sent")
}

func recordWait(err error, prefix string) {
	if err == nil {
		metrics.IncProcWait(prefix + "exit0")
		return
	}
	metrics.IncProcWait(prefix + "exit_nonzero")
}
