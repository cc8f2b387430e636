// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package services

// State is the lifecycle state of a supervised child process.
//
// Transitions:
//
//	Starting -> Ready | Failed | Stopped
//	Ready    -> Stopped
//	Failed   -> Stopped
//
// Stopped is terminal.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// canTransition reports whether a child may move from s to next.
func (s State) canTransition(next State) bool {
	switch s {
	case StateStarting:
		return next != StateStarting
	case StateReady:
		return next == StateStopped
	case StateFailed:
		// A child that timed out may still come up late.
		return next == StateReady || next == StateStopped
	default:
		return false
	}
}
