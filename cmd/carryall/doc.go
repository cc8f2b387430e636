// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

/*
Package main is the entry point of the carryall launcher.

Carryall starts a relocatable analytics installation from wherever its
directory was unpacked or copied. The launcher binary sits in the
installation root next to the embedded runtime:

	carryall(.exe)
	launcher.yaml         optional launcher settings
	python/               embedded interpreter and packages
	superset_home/        application home, settings.json, superset.db
	data/                 examples.duckdb, update_record.json, seed/*.csv
	docs/                 static documentation
	logs/                 child logs and launcher.prom (created on demand)
	run/                  carryall.lock and carryall.pid (created on demand)

# Commands

	carryall start [--update] [--no-browser]
	    Repair settings, prepare the dataset if needed, run the application
	    and the docs server, and open a browser once the application answers
	    its health check. Ctrl+C stops everything.

	carryall update
	    Repair settings and rebuild the dataset indexes and rollups. Nothing
	    is started.

	carryall init [--username admin] [--password admin] [--email addr]
	    First-time setup: repair settings, upgrade the metadata database,
	    create the admin account and load the default roles.

	carryall stop [--wait 15s]
	    Ask the running instance to shut down and kill it if it does not
	    exit in time.

	carryall status [--json]
	    Show whether an instance is running and probe its health endpoints.

	carryall validate [--json]
	    Check that the installation could start, without changing anything.

The hidden docs command is the documentation server child process.

# Process Tree

	carryall
	├── main-layer
	│   └── process:main   (python -m superset.cli.main run ...)
	└── aux-layer
	    └── process:docs   (carryall docs --dir docs --port 8089)

A child that exits is not restarted. On shutdown each child's
process group gets a terminate signal and is killed after the grace period.

# Configuration

Settings come from built-in defaults, an optional launcher.yaml in the
installation root and CARRYALL_* environment variables, highest last:

	CARRYALL_SERVICE_PORT=8088     # main service port
	CARRYALL_DOCS_PORT=8089        # docs server port
	CARRYALL_DOCS_ENABLED=true
	CARRYALL_OPEN_BROWSER=true
	CARRYALL_READINESS_MAX_WAIT=2m
	CARRYALL_READINESS_RECHECK=5s  # health recheck after the wait ran out
	CARRYALL_GRACE_PERIOD=10s
	CARRYALL_LOG_LEVEL=info        # trace, debug, info, warn, error
	CARRYALL_LOG_FORMAT=console    # console or json

# Exit Codes

	0  clean shutdown
	1  unclassified failure
	2  environment (runtime or layout missing)
	3  configuration (settings unreadable)
	4  dataset bootstrap or first-time setup
	5  another instance is running
	6  supervision
	7  main service never became ready or exited on its own
*/
package main
