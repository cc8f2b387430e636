// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

//go:build !windows

package launcher

import (
	"errors"

	"golang.org/x/sys/unix"
)

// signalProcess sends SIGTERM, or SIGKILL when force is set. The launcher
// turns SIGTERM into an orderly shutdown of its children.
func signalProcess(pid int, force bool) error {
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	err := unix.Kill(pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return ErrProcessGone
	}
	return err
}
