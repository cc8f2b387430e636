// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/tomtom215/carryall/internal/paths"
	"github.com/tomtom215/carryall/internal/repair"
	"github.com/tomtom215/carryall/internal/supervisor"
)

// Check is the result of one validation check.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`

	err error
}

// ValidationReport lists every check that was run.
type ValidationReport struct {
	Checks []Check `json:"checks"`
}

// OK reports whether every check passed.
func (r *ValidationReport) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

func (r *ValidationReport) add(name string, err error, detail string) {
	c := Check{Name: name, OK: err == nil, Detail: detail, err: err}
	if err != nil && detail == "" {
		c.Detail = err.Error()
	}
	r.Checks = append(r.Checks, c)
}

// firstError returns the first failed check's error.
func (r *ValidationReport) firstError() error {
	for _, c := range r.Checks {
		if c.err != nil {
			return c.err
		}
	}
	return nil
}

// Validate checks that the installation could be started, without writing
// anything. The returned error is the first failure, tagged with the stage
// that would have failed.
func (l *Launcher) Validate(ctx context.Context) (*ValidationReport, error) {
	report := &ValidationReport{}

	layout, err := paths.Resolve(l.root, l.cfg.Layout.Spec())
	if err != nil {
		report.add("layout", &StageError{Stage: StageEnvironment, Err: err}, "")
		return report, report.firstError()
	}
	report.add("layout", nil, layout.Root)
	report.add("dataset driver", nil, layout.DatasetDriver)

	l.checkSettings(report, layout)
	checkShim(report, layout)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if needed, reason := l.f.Bootstrapper(layout, l.cfg.Bootstrap).NeedsRun(); needed {
		report.add("dataset", nil, "update on next start: "+reason)
	} else {
		report.add("dataset", nil, reason)
	}

	l.checkPorts(report, layout)
	return report, report.firstError()
}

func (l *Launcher) checkSettings(report *ValidationReport, layout *paths.Layout) {
	settings, err := l.f.Repairer(layout).Load()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		report.add("settings", nil, "missing, will be created on first start")
	case err != nil:
		report.add("settings", &StageError{Stage: StageConfig, Err: err}, "")
	case settings.InstallRoot != layout.Root:
		report.add("settings", nil, fmt.Sprintf("will be relocated from %q", settings.InstallRoot))
	default:
		report.add("settings", nil, "matches installation root")
	}
}

func checkShim(report *ValidationReport, layout *paths.Layout) {
	current, err := os.ReadFile(layout.AppConfigShim)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		report.add("config shim", nil, "missing, will be written on next start")
	case err != nil:
		report.add("config shim", &StageError{Stage: StageConfig, Err: err}, "")
	case !bytes.Equal(current, repair.ShimSource()):
		report.add("config shim", nil, "modified, will be rewritten on next start")
	default:
		report.add("config shim", nil, layout.AppConfigShim)
	}
}

func (l *Launcher) checkPorts(report *ValidationReport, layout *paths.Layout) {
	host := l.cfg.Service.Host
	locked, err := supervisor.IsLocked(layout.LockFile)
	switch {
	case err != nil:
		report.add("instance", &StageError{Stage: StageSupervise, Err: err}, "")
	case locked:
		report.add("instance", &StageError{
			Stage: StageSupervise,
			Err:   &supervisor.AlreadyRunningError{Lock: layout.LockFile},
		}, "")
	default:
		report.add("instance", nil, "not running")
	}

	port := l.cfg.Service.Port
	if err := supervisor.ProbePort(host, port); err != nil {
		report.add("main port", &StageError{
			Stage: StageSupervise,
			Err:   &supervisor.AlreadyRunningError{Port: port, Err: err},
		}, "")
	} else {
		report.add("main port", nil, fmt.Sprintf("%d free", port))
	}

	if !l.cfg.Docs.Enabled {
		return
	}
	if err := supervisor.ProbePort(host, l.cfg.Docs.Port); err != nil {
		report.add("docs port", nil, fmt.Sprintf("%d in use, docs server will be skipped", l.cfg.Docs.Port))
	} else {
		report.add("docs port", nil, fmt.Sprintf("%d free", l.cfg.Docs.Port))
	}
}
