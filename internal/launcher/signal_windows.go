// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

//go:build windows

package launcher

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// signalProcess terminates pid and every process it started. A console
// process in another session cannot be sent a Ctrl event, so there is no
// orderly variant here and force is ignored.
func signalProcess(pid int, _ bool) error {
	tree, err := processTree(uint32(pid))
	if err != nil {
		return err
	}
	var errs []error
	for i := len(tree) - 1; i >= 0; i-- {
		if err := terminatePID(tree[i]); err != nil && (i == 0 || !errors.Is(err, ErrProcessGone)) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// processTree returns root followed by its descendants, parents first.
func processTree(root uint32) ([]uint32, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("snapshot processes: %w", err)
	}
	defer windows.CloseHandle(snap)

	children := make(map[uint32][]uint32)
	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		children[entry.ParentProcessID] = append(children[entry.ParentProcessID], entry.ProcessID)
	}

	tree := []uint32{root}
	seen := map[uint32]bool{root: true}
	for i := 0; i < len(tree); i++ {
		for _, child := range children[tree[i]] {
			if !seen[child] {
				seen[child] = true
				tree = append(tree, child)
			}
		}
	}
	return tree, nil
}

func terminatePID(pid uint32) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, pid)
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return ErrProcessGone
		}
		return fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)
	if err := windows.TerminateProcess(h, 1); err != nil {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}
	return nil
}
