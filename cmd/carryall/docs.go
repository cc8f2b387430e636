// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/carryall/internal/docserver"
	"github.com/tomtom215/carryall/internal/logging"
)

// newDocsCommand is the docs server child. It reads no configuration: the
// launcher passes everything it needs as flags.
func newDocsCommand(rootOpts *rootOptions) *cobra.Command {
	opts := docserver.Options{ShutdownTimeout: 5 * time.Second}

	cmd := &cobra.Command{
		Use:    "docs",
		Short:  "Serve the documentation directory",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := logging.DefaultConfig()
			cfg.Format = "json"
			if rootOpts.logLevel != "" {
				cfg.Level = rootOpts.logLevel
			}
			logging.Init(cfg)
			return docserver.Serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "docs", "directory to serve")
	cmd.Flags().StringVar(&opts.Host, "host", "127.0.0.1", "address to bind")
	cmd.Flags().IntVar(&opts.Port, "port", 8089, "port to bind")
	return cmd
}
