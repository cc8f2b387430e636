// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package repair

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	_ "modernc.org/sqlite" // pure Go SQLite driver for the application metadata DB
)

// ExamplesDatabaseName is the registry entry that points at the demo dataset.
const ExamplesDatabaseName = "examples"

// RepairRegistry points the application's registered examples database at
// the settings' ExamplesURI. The application keeps its own copy of the
// connection string in its SQLite metadata database, so relocation has to
// reach it too. A missing metadata database, a missing dbs table or a missing
// examples row are treated as "nothing to repair yet".
func (r *Repairer) RepairRegistry(ctx context.Context, s *Settings) (bool, error) {
	path := r.layout.MetadataDB
	if !s.MetadataURI.IsPath() {
		r.log.Debug().Str("metadata_uri", s.MetadataURI.String()).Msg("Metadata store is not file-backed, registry left alone")
		return false, nil
	}
	if s.MetadataURI.Path != "" {
		path = s.MetadataURI.Path
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		r.log.Debug().Str("path", path).Msg("Metadata database not initialized yet")
		return false, nil
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return false, fmt.Errorf("open metadata database %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	var tables int
	if err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'dbs'`,
	).Scan(&tables); err != nil {
		return false, fmt.Errorf("inspect metadata database %s: %w", path, err)
	}
	if tables == 0 {
		return false, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin registry repair: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT sqlalchemy_uri FROM dbs WHERE database_name = ?`, ExamplesDatabaseName,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read examples registry entry: %w", err)
	}

	want := s.ExamplesURI.String()
	if current == want {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE dbs SET sqlalchemy_uri = ? WHERE database_name = ?`, want, ExamplesDatabaseName,
	); err != nil {
		return false, fmt.Errorf("update examples registry entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit registry repair: %w", err)
	}

	r.log.Info().Str("from", current).Str("to", want).Msg("Examples registry entry relocated")
	return true, nil
}
