// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package repair

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/tomtom215/carryall/internal/paths"
)

// testLayout builds a layout under root with the directories the repairer needs.
func testLayout(t *testing.T, root string) *paths.Layout {
	t.Helper()
	l := &paths.Layout{
		Root:    root,
		AppHome: filepath.Join(root, "superset_home"),
		DataDir: filepath.Join(root, "data"),
	}
	l.SettingsFile = filepath.Join(l.AppHome, paths.SettingsName)
	l.MetadataDB = filepath.Join(l.AppHome, paths.MetadataDBName)
	l.AppConfigShim = filepath.Join(l.AppHome, paths.AppConfigShimName)
	for _, dir := range []string{l.AppHome, l.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return l
}

func realTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved
	}
	return dir
}

func assertAllUnder(t *testing.T, s *Settings, root string) {
	t.Helper()
	for _, f := range locationFields(s) {
		if !f.ptr.IsPath() {
			continue
		}
		if !paths.Within(root, f.ptr.Path) {
			t.Errorf("%s = %q is not under %q", f.name, f.ptr.Path, root)
		}
	}
	if s.InstallRoot != root {
		t.Errorf("InstallRoot = %q, want %q", s.InstallRoot, root)
	}
}

func TestRepair_CreatesDefaults(t *testing.T) {
	t.Parallel()

	root := realTempDir(t)
	l := testLayout(t, root)
	r := New(l)

	res, err := r.Repair(context.Background())
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if !res.Created || !res.Written || !res.ShimWritten {
		t.Errorf("Repair() = %+v, want Created, Written and ShimWritten", res)
	}
	shim, err := os.ReadFile(l.AppConfigShim)
	if err != nil {
		t.Fatalf("config shim not written: %v", err)
	}
	if !bytes.Equal(shim, ShimSource()) {
		t.Error("config shim content differs from ShimSource()")
	}
	if !bytes.Contains(shim, []byte(`os.environ["CARRYALL_SETTINGS"]`)) {
		t.Error("config shim must read the settings path from CARRYALL_SETTINGS")
	}

	s, err := r.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", s.Version, CurrentVersion)
	}
	if s.SecretKey == "" {
		t.Error("SecretKey should be generated")
	}
	if s.MetadataURI.Scheme != "sqlite" || s.ExamplesURI.Scheme != "duckdb" {
		t.Errorf("unexpected schemes: %s, %s", s.MetadataURI, s.ExamplesURI)
	}
	if s.ExamplesURI.Path != filepath.Join(l.DataDir, "examples.duckdb") {
		t.Errorf("ExamplesURI path = %q", s.ExamplesURI.Path)
	}
	assertAllUnder(t, s, root)

	info, err := os.Stat(l.SettingsFile)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 && os.PathSeparator == '/' {
		t.Errorf("settings perm = %o, want 600", perm)
	}
}

func TestRepair_RelocationAndIdempotence(t *testing.T) {
	t.Parallel()

	parent := realTempDir(t)
	rootA := filepath.Join(parent, "install-a")
	rootB := filepath.Join(parent, "moved", "install-b")

	lA := testLayout(t, rootA)
	if _, err := New(lA).Repair(context.Background()); err != nil {
		t.Fatalf("initial Repair() error = %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(rootB), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(rootA, rootB); err != nil {
		t.Fatal(err)
	}

	lB := testLayout(t, rootB)
	r := New(lB)
	res, err := r.Repair(context.Background())
	if err != nil {
		t.Fatalf("Repair() after move error = %v", err)
	}
	if !res.Written {
		t.Error("relocation should rewrite the settings file")
	}
	sort.Strings(res.Relocated)
	want := []string{"examples_uri", "metadata_uri", "upload_dir"}
	if len(res.Relocated) != len(want) {
		t.Fatalf("Relocated = %v, want %v", res.Relocated, want)
	}
	for i := range want {
		if res.Relocated[i] != want[i] {
			t.Errorf("Relocated = %v, want %v", res.Relocated, want)
		}
	}

	s, err := r.Load()
	if err != nil {
		t.Fatal(err)
	}
	assertAllUnder(t, s, rootB)

	first, err := os.ReadFile(lB.SettingsFile)
	if err != nil {
		t.Fatal(err)
	}
	res2, err := r.Repair(context.Background())
	if err != nil {
		t.Fatalf("second Repair() error = %v", err)
	}
	if res2.Written || res2.ShimWritten || len(res2.Relocated) != 0 {
		t.Errorf("second Repair() = %+v, want no-op", res2)
	}
	second, err := os.ReadFile(lB.SettingsFile)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("second repair pass changed the file")
	}
}

func TestRepair_KeepsRelativePositionUnderOldRoot(t *testing.T) {
	t.Parallel()

	root := realTempDir(t)
	l := testLayout(t, root)
	doc := `{
  "version": 1,
  "install_root": "/old/place",
  "secret_key": "s3cret",
  "metadata_uri": "sqlite:////old/place/superset_home/custom/meta.db",
  "examples_uri": "duckdb:////somewhere/else/examples.duckdb",
  "upload_dir": "/old/place/superset_home/uploads"
}`
	if err := os.WriteFile(l.SettingsFile, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	r := New(l)
	if _, err := r.Repair(context.Background()); err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	s, err := r.Load()
	if err != nil {
		t.Fatal(err)
	}

	if want := filepath.Join(root, "superset_home", "custom", "meta.db"); s.MetadataURI.Path != want {
		t.Errorf("MetadataURI path = %q, want %q", s.MetadataURI.Path, want)
	}
	if want := filepath.Join(root, "data", "examples.duckdb"); s.ExamplesURI.Path != want {
		t.Errorf("ExamplesURI path = %q, want canonical %q", s.ExamplesURI.Path, want)
	}
	if s.SecretKey != "s3cret" {
		t.Errorf("SecretKey = %q, repair must not touch non-path fields", s.SecretKey)
	}
	assertAllUnder(t, s, root)
}

func TestRepair_RootMovedIntoAncestor(t *testing.T) {
	t.Parallel()

	parent := realTempDir(t)
	oldRoot := filepath.Join(parent, "portable", "superset")
	newRoot := filepath.Join(parent, "portable")

	if _, err := New(testLayout(t, oldRoot)).Repair(context.Background()); err != nil {
		t.Fatalf("initial Repair() error = %v", err)
	}
	for _, dir := range []string{"superset_home", "data"} {
		if err := os.Rename(filepath.Join(oldRoot, dir), filepath.Join(newRoot, dir)); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Remove(oldRoot); err != nil {
		t.Fatal(err)
	}

	l := testLayout(t, newRoot)
	r := New(l)
	res, err := r.Repair(context.Background())
	if err != nil {
		t.Fatalf("Repair() after move error = %v", err)
	}
	if len(res.Relocated) != 3 || !res.Written {
		t.Errorf("Repair() = %+v, want all three locations relocated", res)
	}

	s, err := r.Load()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(newRoot, "superset_home", "superset.db"); s.MetadataURI.Path != want {
		t.Errorf("MetadataURI path = %q, want %q", s.MetadataURI.Path, want)
	}
	if want := filepath.Join(newRoot, "data", "examples.duckdb"); s.ExamplesURI.Path != want {
		t.Errorf("ExamplesURI path = %q, want %q", s.ExamplesURI.Path, want)
	}
	for _, f := range locationFields(s) {
		if paths.Within(oldRoot, f.ptr.Path) {
			t.Errorf("%s still points into the old root: %q", f.name, f.ptr.Path)
		}
	}
	assertAllUnder(t, s, newRoot)
}

func TestRepair_KeepsURIQuery(t *testing.T) {
	t.Parallel()

	root := realTempDir(t)
	l := testLayout(t, root)
	doc := `{"version":1,"install_root":"/old","secret_key":"k",` +
		`"metadata_uri":"sqlite:////old/superset_home/superset.db?check_same_thread=false",` +
		`"examples_uri":"duckdb:////old/data/examples.duckdb","upload_dir":"/old/superset_home/uploads"}`
	if err := os.WriteFile(l.SettingsFile, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	r := New(l)
	if _, err := r.Repair(context.Background()); err != nil {
		t.Fatal(err)
	}
	s, err := r.Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.MetadataURI.Path != l.MetadataDB {
		t.Errorf("MetadataURI path = %q, want %q", s.MetadataURI.Path, l.MetadataDB)
	}
	if s.MetadataURI.Query != "?check_same_thread=false" {
		t.Errorf("MetadataURI query = %q, driver options must survive relocation", s.MetadataURI.Query)
	}
}

func TestRepair_RestoresEditedShim(t *testing.T) {
	t.Parallel()

	l := testLayout(t, realTempDir(t))
	r := New(l)
	if _, err := r.Repair(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(l.AppConfigShim, []byte("SECRET_KEY = 'edited'\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := r.Repair(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Written || !res.ShimWritten {
		t.Errorf("Repair() = %+v, want only the shim rewritten", res)
	}
	if got, _ := os.ReadFile(l.AppConfigShim); !bytes.Equal(got, ShimSource()) {
		t.Errorf("shim = %q, want the generated module", got)
	}
}

func TestRepair_LeavesNetworkURIAlone(t *testing.T) {
	t.Parallel()

	root := realTempDir(t)
	l := testLayout(t, root)
	doc := `{"version":1,"install_root":"/old","secret_key":"k",` +
		`"metadata_uri":"postgresql://superset@db.internal/superset",` +
		`"examples_uri":"duckdb:////old/data/examples.duckdb","upload_dir":"/old/superset_home/uploads"}`
	if err := os.WriteFile(l.SettingsFile, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	r := New(l)
	if _, err := r.Repair(context.Background()); err != nil {
		t.Fatal(err)
	}
	s, err := r.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := s.MetadataURI.String(); got != "postgresql://superset@db.internal/superset" {
		t.Errorf("MetadataURI = %q, network URI must be kept verbatim", got)
	}
}

func TestRepair_MigratesUnversionedSettings(t *testing.T) {
	t.Parallel()

	root := realTempDir(t)
	l := testLayout(t, root)
	doc := `{"metadata_uri":"sqlite:///` + filepath.ToSlash(filepath.Join(root, "superset_home", "superset.db")) + `"}`
	if err := os.WriteFile(l.SettingsFile, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	r := New(l)
	res, err := r.Repair(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.FromVersion != 0 || !res.Written {
		t.Errorf("Repair() = %+v, want migration from version 0", res)
	}
	s, err := r.Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.Version != CurrentVersion || s.ExamplesURI.IsZero() || s.UploadDir.IsZero() || s.SecretKey == "" {
		t.Errorf("migration did not fill defaults: %+v", s)
	}
}

func TestRepair_CorruptSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"truncated json", `{"version": 1, "metadata_uri": "sqlite:///`},
		{"empty file", "   \n"},
		{"wrong type", `{"version": "one"}`},
		{"future version", `{"version": 99}`},
		{"bad location", `{"version": 1, "upload_dir": "://nowhere"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := testLayout(t, realTempDir(t))
			if err := os.WriteFile(l.SettingsFile, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			_, err := New(l).Repair(context.Background())
			var corrupt *ConfigCorruptError
			if !errors.As(err, &corrupt) {
				t.Fatalf("Repair() error = %v, want *ConfigCorruptError", err)
			}
			if corrupt.Path != l.SettingsFile {
				t.Errorf("Path = %q, want %q", corrupt.Path, l.SettingsFile)
			}

			got, _ := os.ReadFile(l.SettingsFile)
			if string(got) != tt.content {
				t.Error("a corrupt settings file must be left untouched")
			}
		})
	}
}

func TestRepair_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := testLayout(t, realTempDir(t))
	if _, err := New(l).Repair(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Repair() error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(l.SettingsFile); !os.IsNotExist(err) {
		t.Error("cancelled repair must not create the settings file")
	}
}

func TestParseLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Location
		wantErr bool
	}{
		{in: "", want: Location{}},
		{in: "/srv/uploads", want: Location{Path: "/srv/uploads"}},
		{in: "sqlite:////srv/superset.db", want: Location{Scheme: "sqlite", Path: "/srv/superset.db"}},
		{in: "duckdb:///relative.duckdb", want: Location{Scheme: "duckdb", Path: "relative.duckdb"}},
		{
			in:   "sqlite:////srv/superset.db?check_same_thread=false",
			want: Location{Scheme: "sqlite", Path: "/srv/superset.db", Query: "?check_same_thread=false"},
		},
		{in: "duckdb:////srv/ex.duckdb#main", want: Location{Scheme: "duckdb", Path: "/srv/ex.duckdb", Query: "#main"}},
		{in: "/srv/odd#name", want: Location{Path: "/srv/odd#name"}},
		{
			in:   "postgresql://u@host:5432/db",
			want: Location{Scheme: "postgresql", Opaque: "postgresql://u@host:5432/db"},
		},
		{in: "://missing-scheme", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseLocation(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLocation(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLocation(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if !tt.wantErr && got.String() != tt.in {
			t.Errorf("String() = %q, want round trip of %q", got.String(), tt.in)
		}
	}
}
