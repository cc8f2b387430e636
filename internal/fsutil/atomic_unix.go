// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

//go:build !windows

package fsutil

import (
	"os"

	"github.com/google/renameio/v2"
)

// WriteFileAtomic replaces path with data and the given permissions.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return wrapWriteError(path, renameio.WriteFile(path, data, perm))
}
