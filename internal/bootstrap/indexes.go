// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// indexDef is one secondary index required by dashboard queries.
type indexDef struct {
	Name    string
	Table   string
	Columns []string
}

var requiredIndexes = []indexDef{
	{Name: "idx_stations_region", Table: "stations", Columns: []string{"region"}},
	{Name: "idx_daily_operations_date", Table: "daily_operations", Columns: []string{"date"}},
	{Name: "idx_daily_operations_region_date", Table: "daily_operations", Columns: []string{"region", "date"}},
	{Name: "idx_incidents_date", Table: "incidents", Columns: []string{"date"}},
	{Name: "idx_incidents_type_severity", Table: "incidents", Columns: []string{"incident_type", "severity"}},
}

// existingIndexes returns the names of the indexes present in the main schema.
func existingIndexes(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT index_name FROM duckdb_indexes() WHERE schema_name = 'main'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan index name: %w", err)
		}
		names[name] = true
	}
	return names, rows.Err()
}

// ensureIndexes creates the required indexes that do not exist yet and
// returns the names it created.
func ensureIndexes(ctx context.Context, db *sql.DB) ([]string, error) {
	existing, err := existingIndexes(ctx, db)
	if err != nil {
		return nil, err
	}

	var created []string
	for _, idx := range requiredIndexes {
		if existing[idx.Name] {
			continue
		}
		stmt := fmt.Sprintf(`CREATE INDEX %s ON %s(%s)`, idx.Name, idx.Table, strings.Join(idx.Columns, ", "))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return created, fmt.Errorf("failed to create index %s: %w", idx.Name, err)
		}
		created = append(created, idx.Name)
	}
	return created, nil
}
