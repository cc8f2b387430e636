// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

// Package bootstrap prepares the DuckDB demo dataset before the analytics
// service starts.
//
// A pass runs only when the update record is missing, unreadable or older
// than Revision, or when forced. Steps run in this order and each one is a
// no-op when already satisfied:
//
//  1. schema: versioned migrations, each committed with its bookkeeping row
//  2. seed: CSV import into base tables that are still empty
//  3. indexes: created only when missing from duckdb_indexes()
//  4. rollups: every rollup table replaced in one transaction
//  5. compaction: ANALYZE + FORCE CHECKPOINT, best effort
//
// The update record is written last. A crash anywhere before that leaves the
// record stale, and the next pass starts over from a consistent dataset.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/carryall/internal/config"
	"github.com/tomtom215/carryall/internal/logging"
	"github.com/tomtom215/carryall/internal/metrics"
	"github.com/tomtom215/carryall/internal/paths"
)

// Step names.
const (
	StepOpen       = "open"
	StepSchema     = "schema"
	StepSeed       = "seed"
	StepIndexes    = "indexes"
	StepRollups    = "rollups"
	StepCompaction = "compaction"
	StepRecord     = "record"
)

// BootstrapError reports a failed mandatory step.
type BootstrapError struct {
	Step string
	Err  error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap step %s failed: %v", e.Step, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// CompactionWarning reports a failed compaction. It never aborts a pass.
type CompactionWarning struct {
	Err error
}

func (w *CompactionWarning) Error() string {
	return fmt.Sprintf("compaction skipped: %v", w.Err)
}

func (w *CompactionWarning) Unwrap() error {
	return w.Err
}

// Report summarizes a Run.
type Report struct {
	Skipped bool
	Reason  string
	Record  *UpdateRecord
	Warning *CompactionWarning
}

// Bootstrapper prepares the dataset of one installation.
type Bootstrapper struct {
	datasetPath string
	recordPath  string
	seedDir     string
	cfg         config.BootstrapConfig
	log         zerolog.Logger

	rollups []rollup
	compact func(ctx context.Context, db *sql.DB) error
	now     func() time.Time
}

// New creates a Bootstrapper for the layout's dataset.
func New(layout *paths.Layout, cfg config.BootstrapConfig) *Bootstrapper {
	return &Bootstrapper{
		datasetPath: layout.Dataset,
		recordPath:  layout.UpdateRecord,
		seedDir:     layout.SeedDir,
		cfg:         cfg,
		log:         logging.Component("bootstrap"),
		rollups:     defaultRollups,
		compact:     compact,
		now:         time.Now,
	}
}

// NeedsRun reports whether the dataset requires a pass and why.
func (b *Bootstrapper) NeedsRun() (bool, string) {
	if _, err := os.Stat(b.datasetPath); errors.Is(err, fs.ErrNotExist) {
		return true, "dataset missing"
	}
	rec, err := ReadRecord(b.recordPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return true, "no update record"
	case err != nil:
		return true, "update record unreadable"
	case rec.Revision < Revision:
		return true, fmt.Sprintf("dataset revision %d is older than %d", rec.Revision, Revision)
	}
	return false, fmt.Sprintf("dataset at revision %d", rec.Revision)
}

// Run performs a bootstrap pass if needed or forced.
func (b *Bootstrapper) Run(ctx context.Context, force bool) (*Report, error) {
	needed, reason := b.NeedsRun()
	if !needed && !force {
		metrics.BootstrapRuns.WithLabelValues("skipped").Inc()
		b.log.Info().Str("reason", reason).Msg("Dataset up to date, bootstrap skipped")
		return &Report{Skipped: true, Reason: reason}, nil
	}
	if !needed {
		reason = "forced update"
	}

	runID := uuid.NewString()
	log := b.log.With().Str("run_id", runID).Logger()
	log.Info().Str("reason", reason).Str("dataset", b.datasetPath).Msg("Dataset bootstrap starting")

	report, err := b.run(ctx, runID, log)
	if err != nil {
		metrics.BootstrapRuns.WithLabelValues("failed").Inc()
		return nil, err
	}
	report.Reason = reason
	metrics.BootstrapRuns.WithLabelValues("completed").Inc()
	log.Info().Int("revision", Revision).Msg("Dataset bootstrap completed")
	return report, nil
}

func (b *Bootstrapper) run(ctx context.Context, runID string, log zerolog.Logger) (*Report, error) {
	db, err := openStore(ctx, b.datasetPath, b.cfg)
	if err != nil {
		return nil, &BootstrapError{Step: StepOpen, Err: err}
	}
	defer closeQuietly(db)

	rec := &UpdateRecord{Revision: Revision, SchemaVersion: SchemaVersion(), RunID: runID}
	report := &Report{Record: rec}

	steps := []struct {
		name string
		run  func(ctx context.Context) ([]string, error)
	}{
		{StepSchema, func(ctx context.Context) ([]string, error) {
			n, err := migrate(ctx, db)
			if n == 0 {
				return nil, err
			}
			return []string{fmt.Sprintf("%d migrations applied", n)}, err
		}},
		{StepSeed, func(ctx context.Context) ([]string, error) { return seedTables(ctx, db, b.seedDir) }},
		{StepIndexes, func(ctx context.Context) ([]string, error) { return ensureIndexes(ctx, db) }},
		{StepRollups, func(ctx context.Context) ([]string, error) {
			if err := rebuildRollups(ctx, db, b.rollups); err != nil {
				return nil, err
			}
			names := make([]string, len(b.rollups))
			for i, r := range b.rollups {
				names[i] = r.Name
			}
			return names, nil
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, &BootstrapError{Step: step.name, Err: err}
		}
		start := time.Now()
		stepCtx, cancel := stepContext(ctx)
		changes, err := step.run(stepCtx)
		cancel()
		elapsed := time.Since(start)
		metrics.RecordBootstrapStep(step.name, elapsed)
		if err != nil {
			log.Error().Err(err).Str("step", step.name).Msg("Bootstrap step failed")
			return nil, &BootstrapError{Step: step.name, Err: err}
		}
		rec.Steps = append(rec.Steps, StepResult{Name: step.name, Duration: elapsed, Changes: changes})
		log.Info().Str("step", step.name).Dur("elapsed", elapsed).Strs("changes", changes).Msg("Bootstrap step complete")
	}

	if b.cfg.Compact {
		start := time.Now()
		stepCtx, cancel := stepContext(ctx)
		err := b.compact(stepCtx, db)
		cancel()
		elapsed := time.Since(start)
		metrics.RecordBootstrapStep(StepCompaction, elapsed)
		result := StepResult{Name: StepCompaction, Duration: elapsed}
		if err != nil {
			report.Warning = &CompactionWarning{Err: err}
			rec.Compaction = report.Warning.Error()
			result.Warning = rec.Compaction
			metrics.CompactionWarnings.Inc()
			log.Warn().Err(err).Msg("Compaction failed, continuing")
		}
		rec.Steps = append(rec.Steps, result)
	}

	rec.CompletedAt = b.now().UTC()
	if err := writeRecord(b.recordPath, rec); err != nil {
		return nil, &BootstrapError{Step: StepRecord, Err: err}
	}
	return report, nil
}
