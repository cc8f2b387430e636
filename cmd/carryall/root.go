// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tomtom215/carryall/internal/config"
	"github.com/tomtom215/carryall/internal/launcher"
	"github.com/tomtom215/carryall/internal/logging"
	"github.com/tomtom215/carryall/internal/paths"
)

// rootOptions holds the global flags.
type rootOptions struct {
	root     string
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "carryall",
		Short:         "Carryall - portable analytics launcher",
		Long:          "Run a relocatable analytics installation from wherever it was unpacked.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.root, "root", "", "installation root (default: directory of the executable)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
	_ = flags.MarkHidden("root")
	_ = flags.MarkHidden("log-level")

	cmd.AddCommand(newStartCommand(opts))
	cmd.AddCommand(newUpdateCommand(opts))
	cmd.AddCommand(newStopCommand(opts))
	cmd.AddCommand(newInitCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newDocsCommand(opts))

	return cmd
}

// resolveRoot returns the installation root: --root if given, otherwise
// the directory of the running executable. The working directory is never
// consulted.
func (o *rootOptions) resolveRoot() (string, error) {
	if o.root != "" {
		abs, err := filepath.Abs(o.root)
		if err != nil {
			return "", fmt.Errorf("resolve --root: %w", err)
		}
		return filepath.Clean(abs), nil
	}
	exe, err := paths.Executable()
	if err != nil {
		return "", err
	}
	return paths.Root(exe)
}

// newLauncher resolves the root, loads configuration and initializes
// logging.
func (o *rootOptions) newLauncher() (*launcher.Launcher, error) {
	root, err := o.resolveRoot()
	if err != nil {
		return nil, &launcher.StageError{Stage: launcher.StageEnvironment, Err: err}
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, &launcher.StageError{Stage: launcher.StageConfig, Err: err}
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	logging.Init(cfg.LoggingSettings())
	logging.Debug().Str("root", root).Msg("Configuration loaded")

	return launcher.New(root, cfg), nil
}
