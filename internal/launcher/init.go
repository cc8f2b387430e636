// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/tomtom215/carryall/internal/paths"
	"github.com/tomtom215/carryall/internal/supervisor"
)

// InitLogName receives the output of the setup commands in the logs directory.
const InitLogName = "init.log"

// InitOptions name the administrator account created by Init.
type InitOptions struct {
	Username string
	Password string
	Email    string
}

// InitStepError reports a setup command that failed.
type InitStepError struct {
	Step string
	Log  string
	Err  error
}

func (e *InitStepError) Error() string {
	return fmt.Sprintf("%s failed (see %s): %v", e.Step, e.Log, e.Err)
}

func (e *InitStepError) Unwrap() error {
	return e.Err
}

type initStep struct {
	name string
	args []string
	// optional steps only warn on failure.
	optional bool
}

// initSteps are run in order with the interpreter as "-m <module> <args>".
// Creating the admin account fails harmlessly when it already exists.
func initSteps(opts InitOptions) []initStep {
	return []initStep{
		{name: "database upgrade", args: []string{"db", "upgrade"}},
		{name: "admin account", optional: true, args: []string{
			"fab", "create-admin",
			"--username", opts.Username,
			"--password", opts.Password,
			"--firstname", "Admin",
			"--lastname", "User",
			"--email", opts.Email,
		}},
		{name: "application init", args: []string{"init"}},
	}
}

// Init prepares a fresh installation: it repairs the configuration, then
// migrates the metadata database, creates the admin account and loads the
// default roles. It refuses to run while an instance owns the installation.
func (l *Launcher) Init(ctx context.Context, opts InitOptions) error {
	if opts.Username == "" {
		opts.Username = "admin"
	}
	if opts.Password == "" {
		opts.Password = "admin"
	}
	if opts.Email == "" {
		opts.Email = opts.Username + "@localhost"
	}

	layout, err := l.prepareConfig(ctx)
	if layout != nil {
		defer l.writeMetrics(layout)
	}
	if err != nil {
		return err
	}

	running, err := supervisor.IsLocked(layout.LockFile)
	if err != nil {
		return &StageError{Stage: StageSupervise, Err: fmt.Errorf("inspect instance lock: %w", err)}
	}
	if running {
		return &StageError{Stage: StageInit, Err: &supervisor.AlreadyRunningError{Lock: layout.LockFile}}
	}

	err = l.stage(StageInit, func() error { return l.runInitSteps(ctx, layout, opts) })
	if err == nil {
		l.log.Info().Str("username", opts.Username).Msg("Initialization complete")
	}
	return err
}

func (l *Launcher) runInitSteps(ctx context.Context, layout *paths.Layout, opts InitOptions) error {
	logPath := filepath.Join(layout.LogsDir, InitLogName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open init log: %w", err)
	}
	defer logFile.Close()

	env := layout.RuntimeEnv(l.cfg.Service.App).Environ()
	for _, step := range initSteps(opts) {
		args := append([]string{"-m", l.cfg.Service.Module}, step.args...)
		//nolint:gosec // G204: interpreter and arguments come from the layout and config
		cmd := exec.CommandContext(ctx, layout.Interpreter, args...)
		cmd.Env = env
		cmd.Dir = layout.AppHome
		cmd.Stdout = logFile
		cmd.Stderr = logFile

		// Arguments are not logged: one of them is the password.
		_, _ = fmt.Fprintf(logFile, "==> %s\n", step.name)
		l.log.Info().Str("step", step.name).Msg("Running setup step")
		if err := cmd.Run(); err != nil {
			if step.optional {
				l.log.Warn().Err(err).Str("step", step.name).Str("log", logPath).Msg("Setup step failed, continuing")
				continue
			}
			return &InitStepError{Step: step.name, Log: logPath, Err: err}
		}
	}
	return nil
}
