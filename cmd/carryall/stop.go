// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/carryall/internal/launcher"
)

func newStopCommand(rootOpts *rootOptions) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the instance running from this installation",
		Long: `Ask the running launcher to shut down its children and exit. If it has
not exited when --wait elapses it is killed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := rootOpts.newLauncher()
			if err != nil {
				return err
			}
			res, err := l.Stop(cmd.Context(), wait)
			if err != nil {
				return err
			}
			printStop(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "how long to wait before killing (default: grace period + 5s)")
	return cmd
}

func printStop(w io.Writer, res *launcher.StopResult) {
	switch {
	case !res.Running:
		fmt.Fprintln(w, "not running")
	case res.Forced:
		fmt.Fprintf(w, "killed pid %d\n", res.PID)
	default:
		fmt.Fprintf(w, "stopped pid %d\n", res.PID)
	}
}
