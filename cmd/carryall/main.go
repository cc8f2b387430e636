// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/carryall/internal/launcher"
	"github.com/tomtom215/carryall/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	code := launcher.ExitCode(err)
	if err != nil {
		logging.Error().Err(err).Int("exit_code", code).Msg("carryall failed")
	}
	return code
}
