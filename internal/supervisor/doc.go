// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

/*
Package supervisor runs the launcher's child processes under a suture v4 tree.

# Overview

	RootSupervisor ("carryall")
	├── MainSupervisor ("main-layer")
	│   └── ProcessService "main"  (analytics service)
	└── AuxSupervisor ("aux-layer")
	    └── ProcessService "docs"  (static docs server, optional)

Before anything is spawned, Start takes the single-instance guard: an
exclusive advisory lock on run/carryall.lock (gofrs/flock) and a bind probe of
the main port on loopback. If either is taken, *AlreadyRunningError is
returned and no child exists. A busy docs port only skips the docs child,
which is then reported as failed.

# Child lifecycle

Each child runs in its own process group with an explicit environment and
its output appended to logs/<name>.log. States:

	Starting -> Ready    (readiness watcher saw a healthy response)
	Starting -> Failed   (readiness timeout, or skipped)
	any      -> Stopped  (exited, terminated or killed)

A child that exits on its own is not restarted. The launcher observes the
exit through Exited(name) and decides how to end the run.

# Shutdown

Stop cancels the tree. Every ProcessService sends a terminate signal to its
process group, waits up to the grace period, then kills the group. Stop
itself is bounded by the grace period plus a fixed margin, after which the
pid file is removed and the lock released.

# Usage

	sup := supervisor.New(supervisor.Config{
	    LockFile:    layout.LockFile,
	    PIDFile:     layout.PIDFile,
	    Host:        cfg.Service.Host,
	    Main:        mainSpec,
	    Docs:        &docsSpec,
	    GracePeriod: cfg.Supervisor.GracePeriod,
	}, logging.NewSlogLogger("suture"))

	if err := sup.Start(ctx); err != nil {
	    return err // *AlreadyRunningError when another instance owns the root
	}
	defer sup.Stop()

	<-sup.Exited(supervisor.MainChild)
*/
package supervisor
