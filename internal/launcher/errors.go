// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package launcher

import (
	"errors"
	"fmt"

	"github.com/tomtom215/carryall/internal/supervisor"
)

// Stage names. They tag errors, metrics and log lines.
const (
	StageEnvironment = "environment"
	StageConfig      = "config"
	StageBootstrap   = "bootstrap"
	StageSupervise   = "supervise"
	StageReadiness   = "readiness"
	StageInit        = "init"
)

// Process exit codes.
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitEnvironment    = 2
	ExitConfig         = 3
	ExitBootstrap      = 4
	ExitAlreadyRunning = 5
	ExitSupervise      = 6
	ExitReadiness      = 7
)

var stageExitCodes = map[string]int{
	StageEnvironment: ExitEnvironment,
	StageConfig:      ExitConfig,
	StageBootstrap:   ExitBootstrap,
	StageSupervise:   ExitSupervise,
	StageReadiness:   ExitReadiness,
	StageInit:        ExitBootstrap,
}

// ErrMainExited is reported when the main service exits without being asked to.
var ErrMainExited = errors.New("main service exited unexpectedly")

// StageError tags a failure with the launcher stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// MainExitError carries the exit status of a main service that stopped on its own.
type MainExitError struct {
	Code int
	Log  string
	Err  error
}

func (e *MainExitError) Error() string {
	msg := fmt.Sprintf("%v (exit code %d)", ErrMainExited, e.Code)
	if e.Log != "" {
		msg += ", see " + e.Log
	}
	return msg
}

func (e *MainExitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMainExited}
	}
	return []error{ErrMainExited, e.Err}
}

// ExitCode maps an error returned by the launcher to a process exit code.
// Another running instance always maps to ExitAlreadyRunning.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var running *supervisor.AlreadyRunningError
	if errors.As(err, &running) {
		return ExitAlreadyRunning
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		if code, ok := stageExitCodes[stageErr.Stage]; ok {
			return code
		}
	}
	return ExitFailure
}
