// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

/*
Package middleware provides the HTTP middleware of the docs server.

Key Components:

  - RequestID: UUID request IDs in the X-Request-ID header, the request
    context and a request-scoped zerolog logger
  - Metrics: status class and latency into the Prometheus collectors
  - AccessLog: one debug line per request, a warning for slow ones

Middleware Stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.AccessLog(500 * time.Millisecond))

All three take and return http.Handler so they plug into chi's Use.
*/
package middleware
