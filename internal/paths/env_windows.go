// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

//go:build windows

package paths

import (
	"path/filepath"

	"golang.org/x/sys/windows"
)

// windowsDir asks the OS for the system directory instead of trusting SYSTEMROOT.
func windowsDir() string {
	dir, err := windows.GetSystemWindowsDirectory()
	if err != nil {
		return `C:\Windows`
	}
	return dir
}

func systemDirs() []string {
	win := windowsDir()
	return []string{filepath.Join(win, "System32"), win}
}

func platformVars() map[string]string {
	return map[string]string{
		"SYSTEMROOT":       windowsDir(),
		"PYTHONIOENCODING": "utf-8",
		"PYTHONUTF8":       "1",
	}
}
