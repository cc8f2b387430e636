// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tomtom215/carryall/internal/launcher"
)

func newValidateCommand(rootOpts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that the installation could start, without changing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := rootOpts.newLauncher()
			if err != nil {
				return err
			}
			report, err := l.Validate(cmd.Context())
			if report != nil {
				if asJSON {
					if jsonErr := writeJSON(cmd.OutOrStdout(), report); jsonErr != nil {
						return jsonErr
					}
				} else {
					printReport(cmd.OutOrStdout(), report)
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printReport(w io.Writer, report *launcher.ValidationReport) {
	for _, c := range report.Checks {
		mark := "ok"
		if !c.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "%-4s  %-10s %s\n", mark, c.Name, c.Detail)
	}
}
