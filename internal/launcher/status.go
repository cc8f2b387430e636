// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package launcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/tomtom215/carryall/internal/paths"
	"github.com/tomtom215/carryall/internal/readiness"
	"github.com/tomtom215/carryall/internal/supervisor"
)

// Endpoint is the health of one child as seen from outside.
type Endpoint struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Status describes a possibly running installation.
type Status struct {
	Root      string     `json:"root"`
	Running   bool       `json:"running"`
	PID       int        `json:"pid,omitempty"`
	Dataset   string     `json:"dataset"`
	Endpoints []Endpoint `json:"endpoints"`
}

// Status inspects the installation without changing anything.
func (l *Launcher) Status(ctx context.Context) (*Status, error) {
	layout, err := paths.Resolve(l.root, l.cfg.Layout.Spec())
	if err != nil {
		return nil, &StageError{Stage: StageEnvironment, Err: err}
	}

	st := &Status{Root: layout.Root}
	if st.Running, err = supervisor.IsLocked(layout.LockFile); err != nil {
		return nil, &StageError{Stage: StageSupervise, Err: fmt.Errorf("inspect instance lock: %w", err)}
	}
	if st.Running {
		if pid, err := readPID(layout.PIDFile); err == nil {
			st.PID = pid
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.log.Warn().Err(err).Str("path", layout.PIDFile).Msg("Unreadable pid file")
		}
	}

	if needed, reason := l.f.Bootstrapper(layout, l.cfg.Bootstrap).NeedsRun(); needed {
		st.Dataset = "update pending: " + reason
	} else {
		st.Dataset = reason
	}

	st.Endpoints = append(st.Endpoints, l.probe(ctx, supervisor.MainChild, l.healthURL()))
	if l.cfg.Docs.Enabled {
		st.Endpoints = append(st.Endpoints, l.probe(ctx, supervisor.DocsChild, l.docsHealthURL()))
	}
	return st, nil
}

func (l *Launcher) probe(ctx context.Context, name, url string) Endpoint {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Readiness.RequestTimeout)
	defer cancel()
	ep := Endpoint{Name: name, URL: url}
	if err := readiness.Probe(ctx, url); err != nil {
		ep.Error = err.Error()
	} else {
		ep.Healthy = true
	}
	return ep
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", path, err)
	}
	return pid, nil
}
