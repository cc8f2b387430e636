// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

// Package metrics defines the Prometheus collectors for launcher stages, the
// supervised children and the docs server.
//
// The launcher is not a long-running scrape target, so its collectors are
// written to a textfile on exit (WriteTextfile). The docs server child
// exposes its own registry on /metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Launcher stages
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carryall_stage_duration_seconds",
			Help:    "Duration of launcher stages in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carryall_stage_failures_total",
			Help: "Total number of fatal launcher stage failures",
		},
		[]string{"stage"},
	)

	// Config repair
	ConfigRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carryall_config_repairs_total",
			Help: "Settings repair passes by outcome (noop, written, corrupt, error)",
		},
		[]string{"outcome"},
	)

	// Bootstrap
	BootstrapStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carryall_bootstrap_step_duration_seconds",
			Help:    "Duration of dataset bootstrap steps in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	BootstrapRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carryall_bootstrap_runs_total",
			Help: "Dataset bootstrap passes by outcome (skipped, completed, failed)",
		},
		[]string{"outcome"},
	)

	CompactionWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carryall_compaction_warnings_total",
			Help: "Total number of non-fatal compaction failures",
		},
	)

	// Supervised children
	ChildState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "carryall_child_state",
			Help: "Current lifecycle state of each child (0=starting 1=ready 2=failed 3=stopped)",
		},
		[]string{"child"},
	)

	ChildExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carryall_child_exits_total",
			Help: "Child process exits by how they ended (exited, terminated, killed)",
		},
		[]string{"child", "how"},
	)

	// Readiness
	ReadinessPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carryall_readiness_polls_total",
			Help: "Health polls of the main service by result (ok, unhealthy, error)",
		},
		[]string{"result"},
	)

	ReadinessLatency = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "carryall_readiness_seconds",
			Help: "Seconds from spawn until the main service first reported healthy",
		},
	)

	// Docs server
	DocsRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carryall_docs_requests_total",
			Help: "Docs server requests by status code class",
		},
		[]string{"code"},
	)

	DocsRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carryall_docs_request_duration_seconds",
			Help:    "Docs server request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordStage records a launcher stage duration and, on failure, the failure.
func RecordStage(stage string, duration time.Duration, err error) {
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if err != nil {
		StageFailures.WithLabelValues(stage).Inc()
	}
}

// RecordBootstrapStep records the duration of one bootstrap step.
func RecordBootstrapStep(step string, duration time.Duration) {
	BootstrapStepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordDocsRequest records one docs server request.
func RecordDocsRequest(status int, duration time.Duration) {
	DocsRequests.WithLabelValues(codeClass(status)).Inc()
	DocsRequestDuration.Observe(duration.Seconds())
}

func codeClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return fmt.Sprintf("%dxx", status/100)
}

// WriteTextfile writes the default registry in the Prometheus text format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
