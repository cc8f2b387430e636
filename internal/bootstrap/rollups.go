// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
)

// rollup is a pre-aggregated table derived purely from base tables.
type rollup struct {
	Name  string
	Query string
}

var defaultRollups = []rollup{
	{
		Name: "rollup_operations_monthly",
		Query: `SELECT
				date_trunc('month', date)::DATE AS month,
				region,
				count(*) AS days,
				sum(passengers_thousands) AS passengers_thousands,
				sum(cargo_tons_thousands) AS cargo_tons_thousands,
				sum(revenue_mln) AS revenue_mln,
				avg(avg_speed_kmh) AS avg_speed_kmh,
				avg(delay_minutes) AS avg_delay_minutes,
				sum(trains_count) AS trains_count,
				avg(occupancy_pct) AS avg_occupancy_pct
			FROM daily_operations
			GROUP BY ALL
			ORDER BY ALL`,
	},
	{
		Name: "rollup_incidents_by_type",
		Query: `SELECT
				incident_type,
				severity,
				count(*) AS incidents,
				sum(duration_minutes) AS duration_minutes,
				sum(affected_trains) AS affected_trains,
				count(*) FILTER (WHERE resolved) AS resolved
			FROM incidents
			GROUP BY ALL
			ORDER BY ALL`,
	},
	{
		Name: "rollup_station_traffic",
		Query: `SELECT
				region,
				railway_branch,
				count(*) AS stations,
				sum(passengers_day) AS passengers_day,
				sum(cargo_tons_year) AS cargo_tons_year
			FROM stations
			GROUP BY ALL
			ORDER BY ALL`,
	},
}

// rebuildRollups replaces every rollup table in a single transaction, so
// readers and a crashed run only ever see the complete old set or the
// complete new set.
func rebuildRollups(ctx context.Context, db *sql.DB, rollups []rollup) error {
	return inTx(ctx, db, func(tx *sql.Tx) error {
		for _, r := range rollups {
			stmt := fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS %s`, r.Name, r.Query)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to rebuild %s: %w", r.Name, err)
			}
		}
		return nil
	})
}

// compact reclaims storage and refreshes statistics.
func compact(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{`ANALYZE`, `FORCE CHECKPOINT`} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}
