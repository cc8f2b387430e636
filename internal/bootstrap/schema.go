// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration is one versioned schema change of the demo dataset.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         []string
	AppliedAt   time.Time
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TIMESTAMP NOT NULL
)`

// BaseTables are the tables the rollups are computed from, in seed order.
var BaseTables = []string{"stations", "daily_operations", "incidents"}

// migrations are append-only. Never edit or remove an entry once released.
var migrations = []Migration{
	{
		Version:     1,
		Name:        "base_tables",
		Description: "Create stations, daily_operations and incidents",
		SQL: []string{
			`CREATE TABLE IF NOT EXISTS stations (
				id INTEGER PRIMARY KEY,
				name VARCHAR NOT NULL,
				city VARCHAR,
				region VARCHAR,
				latitude DOUBLE,
				longitude DOUBLE,
				passengers_day INTEGER,
				cargo_tons_year BIGINT,
				railway_branch VARCHAR,
				station_class INTEGER
			)`,
			`CREATE TABLE IF NOT EXISTS daily_operations (
				id BIGINT PRIMARY KEY,
				date DATE NOT NULL,
				region VARCHAR,
				route_type VARCHAR,
				passengers_thousands DOUBLE,
				cargo_tons_thousands DOUBLE,
				revenue_mln DOUBLE,
				avg_speed_kmh DOUBLE,
				delay_minutes INTEGER,
				trains_count INTEGER,
				occupancy_pct DOUBLE
			)`,
			`CREATE TABLE IF NOT EXISTS incidents (
				id BIGINT PRIMARY KEY,
				incident_id VARCHAR NOT NULL,
				date DATE,
				region VARCHAR,
				railway_branch VARCHAR,
				incident_type VARCHAR,
				severity VARCHAR,
				duration_minutes INTEGER,
				affected_trains INTEGER,
				resolved BOOLEAN,
				cause VARCHAR
			)`,
		},
	},
	{
		Version:     2,
		Name:        "incident_description",
		Description: "Add free-text description to incidents",
		SQL: []string{
			`ALTER TABLE incidents ADD COLUMN IF NOT EXISTS description VARCHAR`,
		},
	},
}

// SchemaVersion is the highest migration version known to this build.
func SchemaVersion() int {
	return migrations[len(migrations)-1].Version
}

// migrate applies every migration not yet recorded in schema_migrations.
// Each migration and its bookkeeping row commit together.
func migrate(ctx context.Context, db *sql.DB) (int, error) {
	if _, err := db.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			for _, stmt := range m.SQL {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("failed to execute migration v%d (%s): %w", m.Version, m.Name, err)
				}
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, description, applied_at) VALUES (?, ?, ?, ?)`,
				m.Version, m.Name, m.Description, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// MigrationHistory returns the applied migrations in order.
func MigrationHistory(ctx context.Context, db *sql.DB) ([]Migration, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT version, name, coalesce(description, ''), applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration history: %w", err)
	}
	defer rows.Close()

	var history []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.Description, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		history = append(history, m)
	}
	return history, rows.Err()
}
