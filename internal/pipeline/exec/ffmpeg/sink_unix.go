// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !windows

package ffmpeg

import (
	"path/filepath"

	"github.com/google/renameio/v2"
)

type renamePending struct {
	*renameio.PendingFile
}

func openPending(path string) (pendingFile, error) {
	pf, err := renameio.NewPendingFile(path,
		renameio.WithTempDir(filepath.Dir(path)),
		renameio.WithPermissions(0o644),
	)
	if err != nil {
		return nil, err
	}
	return renamePending{pf}, nil
}

// commit fsyncs and renames over the reservation placeholder.
func (p renamePending) commit() error { return p.CloseAtomicallyReplace() }

func (p renamePending) cleanup() error { return p.Cleanup() }
