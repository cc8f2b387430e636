// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

//go:build !windows

package paths

func systemDirs() []string {
	return []string{"/usr/local/bin", "/usr/bin", "/bin"}
}

func platformVars() map[string]string {
	return map[string]string{"LANG": "C.UTF-8"}
}
