// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// seedTables loads seedDir/<table>.csv into each base table that is still
// empty. A table with rows is never reseeded, so reruns cannot duplicate
// data. Returns the names of the tables that were loaded.
func seedTables(ctx context.Context, db *sql.DB, seedDir string) ([]string, error) {
	var loaded []string
	for _, table := range BaseTables {
		csvPath := filepath.Join(seedDir, table+".csv")
		if _, err := os.Stat(csvPath); errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return loaded, fmt.Errorf("stat seed %s: %w", csvPath, err)
		}

		var rows int64
		if err := db.QueryRowContext(ctx, `SELECT count(*) FROM `+table).Scan(&rows); err != nil {
			return loaded, fmt.Errorf("count %s: %w", table, err)
		}
		if rows > 0 {
			continue
		}

		stmt := fmt.Sprintf(`INSERT INTO %s BY NAME SELECT * FROM read_csv(%s, header = true, auto_detect = true)`,
			table, quoteLiteral(filepath.ToSlash(csvPath)))
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, stmt)
			return err
		})
		if err != nil {
			return loaded, fmt.Errorf("seed %s from %s: %w", table, csvPath, err)
		}
		loaded = append(loaded, table)
	}
	return loaded, nil
}

// quoteLiteral renders s as a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
