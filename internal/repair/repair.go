// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

// Package repair keeps the persisted settings consistent with the current
// installation root.
//
// A repair pass loads the settings file, upgrades it through the versioned
// migrations and then applies the relocation step, which rewrites every
// path-valued field that points outside the root. The file is replaced
// atomically and only when the decoded settings actually changed, so a
// second pass over a repaired file never touches it. The same holds for the
// application config shim, which loads the settings file at startup.
package repair

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/carryall/internal/fsutil"
	"github.com/tomtom215/carryall/internal/logging"
	"github.com/tomtom215/carryall/internal/metrics"
	"github.com/tomtom215/carryall/internal/paths"
)

// ConfigCorruptError reports a settings file that cannot be parsed.
type ConfigCorruptError struct {
	Path string
	Err  error
}

func (e *ConfigCorruptError) Error() string {
	return fmt.Sprintf("config corrupt: %s: %v", e.Path, e.Err)
}

func (e *ConfigCorruptError) Unwrap() error {
	return e.Err
}

// Result describes what a repair pass did.
type Result struct {
	Created         bool
	FromVersion     int
	Relocated       []string
	Written         bool
	ShimWritten     bool
	RegistryUpdated bool
}

// migration upgrades settings from Version-1 to Version.
type migration struct {
	Version int
	Name    string
	Apply   func(s *Settings, anchors map[string]string) error
}

// migrations are applied in order to settings older than their Version.
var migrations = []migration{
	{
		Version: 1,
		Name:    "fill_defaults",
		Apply:   fillDefaults,
	},
}

// Repairer repairs the settings file of one installation.
type Repairer struct {
	layout *paths.Layout
	log    zerolog.Logger
}

// New creates a Repairer for the given layout.
func New(layout *paths.Layout) *Repairer {
	return &Repairer{
		layout: layout,
		log:    logging.Component("repair"),
	}
}

// anchors maps locate tag anchors to directories of the current layout.
func (r *Repairer) anchors() map[string]string {
	return map[string]string{
		"root":     r.layout.Root,
		"app_home": r.layout.AppHome,
		"data":     r.layout.DataDir,
	}
}

// Load reads and decodes the settings file without modifying it.
func (r *Repairer) Load() (*Settings, error) {
	data, err := os.ReadFile(r.layout.SettingsFile)
	if err != nil {
		return nil, err
	}
	return decode(r.layout.SettingsFile, data)
}

func decode(path string, data []byte) (*Settings, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ConfigCorruptError{Path: path, Err: errors.New("file is empty")}
	}
	s := &Settings{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, &ConfigCorruptError{Path: path, Err: err}
	}
	if s.Version < 0 || s.Version > CurrentVersion {
		return nil, &ConfigCorruptError{
			Path: path,
			Err:  fmt.Errorf("unsupported settings version %d (max %d)", s.Version, CurrentVersion),
		}
	}
	return s, nil
}

// Repair runs one repair pass over the settings file.
func (r *Repairer) Repair(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := r.layout.SettingsFile
	res := &Result{}

	data, err := os.ReadFile(path)
	var current, before *Settings
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.Created = true
		current = &Settings{}
	case err != nil:
		metrics.ConfigRepairs.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	default:
		if current, err = decode(path, data); err != nil {
			metrics.ConfigRepairs.WithLabelValues("corrupt").Inc()
			return nil, err
		}
		before, _ = decode(path, data)
	}
	res.FromVersion = current.Version

	anchors := r.anchors()
	for _, m := range migrations {
		if current.Version >= m.Version {
			continue
		}
		if err := m.Apply(current, anchors); err != nil {
			return nil, fmt.Errorf("settings migration %d (%s): %w", m.Version, m.Name, err)
		}
		current.Version = m.Version
		r.log.Info().Int("version", m.Version).Str("migration", m.Name).Msg("Settings migrated")
	}

	relocated, err := relocate(current, r.layout.Root, anchors)
	if err != nil {
		return nil, err
	}
	res.Relocated = relocated

	if before != nil && reflect.DeepEqual(before, current) {
		metrics.ConfigRepairs.WithLabelValues("noop").Inc()
		r.log.Debug().Str("path", path).Msg("Settings already match installation root")
	} else {
		encoded, err := json.MarshalIndent(current, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode settings: %w", err)
		}
		encoded = append(encoded, '\n')
		if err := fsutil.WriteFileAtomic(path, encoded, 0o600); err != nil {
			metrics.ConfigRepairs.WithLabelValues("error").Inc()
			return nil, err
		}
		res.Written = true
		metrics.ConfigRepairs.WithLabelValues("written").Inc()

		r.log.Info().
			Str("path", path).
			Bool("created", res.Created).
			Strs("relocated", relocated).
			Msg("Settings repaired")
	}

	if res.ShimWritten, err = r.ensureShim(); err != nil {
		return nil, err
	}
	return res, nil
}

// fillDefaults is migration 1: it fills every unset field.
func fillDefaults(s *Settings, anchors map[string]string) error {
	for _, f := range locationFields(s) {
		if !f.ptr.IsZero() {
			continue
		}
		loc, err := f.canonical(anchors)
		if err != nil {
			return err
		}
		*f.ptr = loc
	}
	if s.SecretKey == "" {
		key, err := newSecretKey()
		if err != nil {
			return err
		}
		s.SecretKey = key
	}
	if s.FeatureFlags == nil {
		s.FeatureFlags = defaultFeatureFlags()
	}
	return nil
}

// relocate rebases every path-valued field onto root and returns the names of
// the fields it changed. When the recorded root differs from root, a path
// under the recorded root keeps its position relative to it. Any other path
// outside root falls back to the field's canonical location.
func relocate(s *Settings, root string, anchors map[string]string) ([]string, error) {
	oldRoot := s.InstallRoot
	var changed []string

	for _, f := range locationFields(s) {
		loc := *f.ptr
		if !loc.IsPath() {
			continue
		}
		if loc.Path == "" {
			canon, err := f.canonical(anchors)
			if err != nil {
				return nil, err
			}
			canon.Query = loc.Query
			*f.ptr = canon
			changed = append(changed, f.name)
			continue
		}
		if !filepath.IsAbs(loc.Path) {
			loc.Path = filepath.Join(root, loc.Path)
			*f.ptr = loc
			changed = append(changed, f.name)
			continue
		}
		// Checked before the root test: an installation moved up into an
		// ancestor of its old root still has its stale paths under root.
		if oldRoot != "" && oldRoot != root && paths.Within(oldRoot, loc.Path) {
			rel, err := filepath.Rel(oldRoot, loc.Path)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.name, err)
			}
			loc.Path = filepath.Join(root, rel)
			*f.ptr = loc
			changed = append(changed, f.name)
			continue
		}
		if paths.Within(root, loc.Path) {
			continue
		}

		canon, err := f.canonical(anchors)
		if err != nil {
			return nil, err
		}
		loc.Path = canon.Path
		*f.ptr = loc
		changed = append(changed, f.name)
	}

	s.InstallRoot = root
	return changed, nil
}
