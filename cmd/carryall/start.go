// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package main

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/carryall/internal/launcher"
)

func newStartCommand(rootOpts *rootOptions) *cobra.Command {
	var opts launcher.StartOptions

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the analytics service and the docs server",
		Long: `Repair settings for the current location, prepare the demo dataset if it
is missing or stale, then run the analytics service and the documentation
server until interrupted. A browser is opened once the service answers its
health check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := rootOpts.newLauncher()
			if err != nil {
				return err
			}
			return l.Start(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.ForceUpdate, "update", false, "rebuild the dataset before starting")
	cmd.Flags().BoolVar(&opts.NoBrowser, "no-browser", false, "do not open a browser when ready")
	return cmd
}

func newUpdateCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Repair settings and rebuild the dataset without starting services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := rootOpts.newLauncher()
			if err != nil {
				return err
			}
			return l.Update(cmd.Context())
		},
	}
}
