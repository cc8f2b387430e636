// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package bootstrap

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/carryall/internal/fsutil"
)

// Revision identifies the dataset preparation logic of this build. Bump it
// whenever migrations, indexes or rollup definitions change so that existing
// installs rerun the bootstrap on their next start.
const Revision = 2

// UpdateRecord marks a completed bootstrap pass. It is written only after
// every mandatory step succeeded.
type UpdateRecord struct {
	Revision      int          `json:"revision"`
	SchemaVersion int          `json:"schema_version"`
	RunID         string       `json:"run_id"`
	CompletedAt   time.Time    `json:"completed_at"`
	Steps         []StepResult `json:"steps"`
	Compaction    string       `json:"compaction_warning,omitempty"`
}

// StepResult is the outcome of one bootstrap step.
type StepResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ns"`
	Changes  []string      `json:"changes,omitempty"`
	Warning  string        `json:"warning,omitempty"`
}

// ReadRecord reads the update record at path.
func ReadRecord(path string) (*UpdateRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rec := &UpdateRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("parse update record %s: %w", path, err)
	}
	return rec, nil
}

// writeRecord atomically replaces the update record.
func writeRecord(path string, rec *UpdateRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode update record: %w", err)
	}
	return fsutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}
