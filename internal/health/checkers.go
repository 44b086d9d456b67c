// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// BinaryChecker verifies that an executable resolves on PATH.
type BinaryChecker struct {
	Label string
	Bin   string
}

func (c BinaryChecker) Name() string { return c.Label }

func (c BinaryChecker) Check(_ context.Context) CheckResult {
	path, err := exec.LookPath(c.Bin)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: path}
}

// DirChecker verifies that a directory exists and accepts new files.
type DirChecker struct {
	Label string
	Dir   string
}

func (c DirChecker) Name() string { return c.Label }

func (c DirChecker) Check(_ context.Context) CheckResult {
	info, err := os.Stat(c.Dir)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: fmt.Sprintf("%s is not a directory", c.Dir)}
	}
	f, err := os.CreateTemp(c.Dir, ".ready-*")
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return CheckResult{Status: StatusHealthy, Message: filepath.Clean(c.Dir)}
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc struct {
	Label string
	Fn    func(ctx context.Context) CheckResult
}

func (c CheckerFunc) Name() string                          { return c.Label }
func (c CheckerFunc) Check(ctx context.Context) CheckResult { return c.Fn(ctx) }
