// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

// Package fsutil holds the durable file write used for every piece of
// launcher-owned persisted state.
//
// WriteFileAtomic writes to a temporary file in the target directory, syncs
// it and renames it over the target, so readers observe either the old or
// the new content. The parent directory must exist. On POSIX systems the
// write goes through renameio; renameio has no Windows implementation, so
// Windows builds use MoveFileEx semantics through os.Rename.
package fsutil

import "fmt"

func wrapWriteError(path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("atomic write %s: %w", path, err)
}
