// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/carryall/internal/launcher"
)

func newStatusCommand(rootOpts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether an instance is running and healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := rootOpts.newLauncher()
			if err != nil {
				return err
			}
			st, err := l.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printStatus(w io.Writer, st *launcher.Status) {
	running := "no"
	if st.Running {
		running = "yes"
		if st.PID != 0 {
			running = fmt.Sprintf("yes (pid %d)", st.PID)
		}
	}
	fmt.Fprintf(w, "%-9s %s\n", "root:", st.Root)
	fmt.Fprintf(w, "%-9s %s\n", "running:", running)
	fmt.Fprintf(w, "%-9s %s\n", "dataset:", st.Dataset)
	for _, ep := range st.Endpoints {
		health := "healthy"
		if !ep.Healthy {
			health = "down (" + ep.Error + ")"
		}
		fmt.Fprintf(w, "%-9s %s %s\n", ep.Name+":", ep.URL, health)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
