// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package main

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/carryall/internal/launcher"
)

func newInitCommand(rootOpts *rootOptions) *cobra.Command {
	var opts launcher.InitOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Migrate the metadata database and create the admin account",
		Long: `First-time setup of the application: repair settings for the current
location, upgrade the metadata database, create the admin account (an
existing account is left alone) and load the default roles. Output goes to
logs/init.log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := rootOpts.newLauncher()
			if err != nil {
				return err
			}
			return l.Init(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Username, "username", "u", "admin", "admin account name")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "admin", "admin account password")
	cmd.Flags().StringVar(&opts.Email, "email", "", "admin account email (default: <username>@localhost)")
	return cmd
}
