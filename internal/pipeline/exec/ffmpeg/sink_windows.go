// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package ffmpeg

import (
	"os"
	"path/filepath"
)

type tempPending struct {
	*os.File
	target string
}

func openPending(path string) (pendingFile, error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".pending-*")
	if err != nil {
		return nil, err
	}
	return &tempPending{File: f, target: path}, nil
}

func (p *tempPending) commit() error {
	if err := p.Sync(); err != nil {
		return err
	}
	if err := p.Close(); err != nil {
		return err
	}
	return os.Rename(p.Name(), p.target)
}

func (p *tempPending) cleanup() error {
	_ = p.Close()
	return os.Remove(p.Name())
}
