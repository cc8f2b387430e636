// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package repair

import (
	"context"
	"database/sql"
	"testing"
)

// createMetadataDB creates a metadata database with an examples entry.
func createMetadataDB(t *testing.T, path, examplesURI string, withTable bool) {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if !withTable {
		if _, err := db.Exec(`CREATE TABLE ab_user (id INTEGER PRIMARY KEY)`); err != nil {
			t.Fatal(err)
		}
		return
	}
	stmts := []string{
		`CREATE TABLE dbs (id INTEGER PRIMARY KEY, database_name TEXT UNIQUE, sqlalchemy_uri TEXT)`,
		`INSERT INTO dbs (database_name, sqlalchemy_uri) VALUES ('main', 'sqlite:////elsewhere/main.db')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.Exec(`INSERT INTO dbs (database_name, sqlalchemy_uri) VALUES ('examples', ?)`, examplesURI); err != nil {
		t.Fatal(err)
	}
}

func readURI(t *testing.T, path, name string) string {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var uri string
	if err := db.QueryRow(`SELECT sqlalchemy_uri FROM dbs WHERE database_name = ?`, name).Scan(&uri); err != nil {
		t.Fatal(err)
	}
	return uri
}

func repairedSettings(t *testing.T, r *Repairer) *Settings {
	t.Helper()
	if _, err := r.Repair(context.Background()); err != nil {
		t.Fatal(err)
	}
	s, err := r.Load()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRepairRegistry(t *testing.T) {
	t.Parallel()

	l := testLayout(t, realTempDir(t))
	r := New(l)
	s := repairedSettings(t, r)
	createMetadataDB(t, l.MetadataDB, "duckdb:////old/root/data/examples.duckdb", true)

	updated, err := r.RepairRegistry(context.Background(), s)
	if err != nil {
		t.Fatalf("RepairRegistry() error = %v", err)
	}
	if !updated {
		t.Error("RepairRegistry() should update a stale entry")
	}
	if got := readURI(t, l.MetadataDB, "examples"); got != s.ExamplesURI.String() {
		t.Errorf("examples uri = %q, want %q", got, s.ExamplesURI.String())
	}
	if got := readURI(t, l.MetadataDB, "main"); got != "sqlite:////elsewhere/main.db" {
		t.Errorf("unrelated entry changed to %q", got)
	}

	updated, err = r.RepairRegistry(context.Background(), s)
	if err != nil {
		t.Fatalf("second RepairRegistry() error = %v", err)
	}
	if updated {
		t.Error("second RepairRegistry() should be a no-op")
	}
}

func TestRepairRegistry_MetadataURIWithOptions(t *testing.T) {
	t.Parallel()

	l := testLayout(t, realTempDir(t))
	r := New(l)
	s := repairedSettings(t, r)
	s.MetadataURI.Query = "?check_same_thread=false"
	createMetadataDB(t, l.MetadataDB, "duckdb:////old/root/data/examples.duckdb", true)

	updated, err := r.RepairRegistry(context.Background(), s)
	if err != nil {
		t.Fatalf("RepairRegistry() error = %v", err)
	}
	if !updated {
		t.Fatal("RepairRegistry() should find the metadata database behind a URI with options")
	}
	if got := readURI(t, l.MetadataDB, "examples"); got != s.ExamplesURI.String() {
		t.Errorf("examples uri = %q, want %q", got, s.ExamplesURI.String())
	}
}

func TestRepairRegistry_NothingToRepair(t *testing.T) {
	t.Parallel()

	t.Run("no database", func(t *testing.T) {
		t.Parallel()
		l := testLayout(t, realTempDir(t))
		r := New(l)
		updated, err := r.RepairRegistry(context.Background(), repairedSettings(t, r))
		if err != nil || updated {
			t.Errorf("RepairRegistry() = %v, %v; want false, nil", updated, err)
		}
	})

	t.Run("no dbs table", func(t *testing.T) {
		t.Parallel()
		l := testLayout(t, realTempDir(t))
		r := New(l)
		s := repairedSettings(t, r)
		createMetadataDB(t, l.MetadataDB, "", false)
		updated, err := r.RepairRegistry(context.Background(), s)
		if err != nil || updated {
			t.Errorf("RepairRegistry() = %v, %v; want false, nil", updated, err)
		}
	})

	t.Run("network metadata store", func(t *testing.T) {
		t.Parallel()
		l := testLayout(t, realTempDir(t))
		r := New(l)
		s := repairedSettings(t, r)
		s.MetadataURI = Location{Scheme: "postgresql", Opaque: "postgresql://u@h/db"}
		updated, err := r.RepairRegistry(context.Background(), s)
		if err != nil || updated {
			t.Errorf("RepairRegistry() = %v, %v; want false, nil", updated, err)
		}
	})
}
