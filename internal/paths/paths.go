// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

// Package paths resolves the installation root from the launcher executable
// and derives every other path, plus the child process environment, from it.
//
// Nothing in this package consults the working directory or the ambient
// environment for runtime locations. Resolve has no side effects.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Spec names the layout subdirectories relative to the installation root.
type Spec struct {
	RuntimeDir string
	AppHome    string
	DataDir    string
	DocsDir    string
	LogsDir    string
	RunDir     string
}

// Layout holds every absolute path the launcher and its children use.
type Layout struct {
	Root string

	RuntimeDir    string
	Interpreter   string
	ScriptsDir    string
	SitePackages  string
	DatasetDriver string

	AppHome       string
	AppConfigShim string
	SettingsFile  string
	MetadataDB    string
	UploadDir     string
	DataDir       string
	Dataset       string
	UpdateRecord  string
	SeedDir       string
	DocsDir       string
	LogsDir       string
	RunDir        string
	LockFile      string
	PIDFile       string
}

// File names inside the layout directories.
const (
	AppConfigShimName = "superset_config.py"
	SettingsName      = "settings.json"
	MetadataDBName    = "superset.db"
	UploadDirName     = "uploads"
	DatasetName       = "examples.duckdb"
	UpdateRecordName  = "update_record.json"
	SeedDirName       = "seed"
	DatasetDriverName = "duckdb_engine"
	LockName          = "carryall.lock"
	PIDName           = "carryall.pid"
)

// EnvironmentError reports a missing runtime or a corrupted layout.
type EnvironmentError struct {
	Path   string
	Reason string
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("environment error: %s: %s", e.Reason, e.Path)
}

// Executable returns the symlink-resolved path of the running launcher.
func Executable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", &EnvironmentError{Path: "<executable>", Reason: err.Error()}
	}
	return exe, nil
}

// Root returns the installation root for the given executable path: its
// absolute, symlink-resolved, cleaned parent directory.
func Root(executable string) (string, error) {
	abs, err := filepath.Abs(executable)
	if err != nil {
		return "", &EnvironmentError{Path: executable, Reason: "cannot make executable path absolute"}
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(filepath.Dir(abs)), nil
}

// Resolve builds the Layout under root and checks that the runtime with its
// dataset driver, the application home and the data directory exist.
func Resolve(root string, spec Spec) (*Layout, error) {
	if !filepath.IsAbs(root) {
		return nil, &EnvironmentError{Path: root, Reason: "installation root is not absolute"}
	}
	root = filepath.Clean(root)
	if err := requireDir(root, "installation root missing"); err != nil {
		return nil, err
	}

	l := &Layout{
		Root:       root,
		RuntimeDir: filepath.Join(root, spec.RuntimeDir),
		AppHome:    filepath.Join(root, spec.AppHome),
		DataDir:    filepath.Join(root, spec.DataDir),
		DocsDir:    filepath.Join(root, spec.DocsDir),
		LogsDir:    filepath.Join(root, spec.LogsDir),
		RunDir:     filepath.Join(root, spec.RunDir),
	}
	l.Interpreter, l.ScriptsDir = interpreterPaths(l.RuntimeDir)
	l.SitePackages = sitePackages(l.RuntimeDir)
	l.DatasetDriver = filepath.Join(l.SitePackages, DatasetDriverName)
	l.AppConfigShim = filepath.Join(l.AppHome, AppConfigShimName)
	l.SettingsFile = filepath.Join(l.AppHome, SettingsName)
	l.MetadataDB = filepath.Join(l.AppHome, MetadataDBName)
	l.UploadDir = filepath.Join(l.AppHome, UploadDirName)
	l.Dataset = filepath.Join(l.DataDir, DatasetName)
	l.UpdateRecord = filepath.Join(l.DataDir, UpdateRecordName)
	l.SeedDir = filepath.Join(l.DataDir, SeedDirName)
	l.LockFile = filepath.Join(l.RunDir, LockName)
	l.PIDFile = filepath.Join(l.RunDir, PIDName)

	if err := requireDir(l.RuntimeDir, "runtime directory missing"); err != nil {
		return nil, err
	}
	if err := requireFile(l.Interpreter, "interpreter missing"); err != nil {
		return nil, err
	}
	// The registered examples database is a duckdb:// URI, which the
	// application can only open through this package.
	if err := requireDir(l.DatasetDriver, "dataset driver missing from runtime"); err != nil {
		return nil, err
	}
	if err := requireDir(l.AppHome, "application home missing"); err != nil {
		return nil, err
	}
	if err := requireDir(l.DataDir, "data directory missing"); err != nil {
		return nil, err
	}
	return l, nil
}

// EnsureStateDirs creates the log and run directories.
func (l *Layout) EnsureStateDirs() error {
	for _, dir := range []string{l.LogsDir, l.RunDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Contains reports whether path lies inside the installation root.
func (l *Layout) Contains(path string) bool {
	return Within(l.Root, path)
}

// Within reports whether path is base itself or lies under it.
func Within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !filepath.IsAbs(rel) && !hasParentPrefix(rel))
}

func hasParentPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:2] == ".." && os.IsPathSeparator(rel[2])
}

func interpreterPaths(runtimeDir string) (interpreter, scripts string) {
	if runtime.GOOS == "windows" {
		return filepath.Join(runtimeDir, "python.exe"), filepath.Join(runtimeDir, "Scripts")
	}
	return filepath.Join(runtimeDir, "bin", "python3"), filepath.Join(runtimeDir, "bin")
}

// sitePackages returns the interpreter's site-packages directory. On POSIX
// layouts the directory is versioned, so the first lib/python3.* match wins.
func sitePackages(runtimeDir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(runtimeDir, "Lib", "site-packages")
	}
	matches, _ := filepath.Glob(filepath.Join(runtimeDir, "lib", "python3*", "site-packages"))
	if len(matches) > 0 {
		return matches[0]
	}
	return filepath.Join(runtimeDir, "lib", "site-packages")
}

func requireDir(path, reason string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return &EnvironmentError{Path: path, Reason: reason}
	}
	return nil
}

func requireFile(path, reason string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return &EnvironmentError{Path: path, Reason: reason}
	}
	return nil
}
