// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package repair

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/tomtom215/carryall/internal/fsutil"
	"github.com/tomtom215/carryall/internal/paths"
)

// shimSource is the application config module named by SUPERSET_CONFIG_PATH.
// It holds no paths of its own: every location comes from the settings file
// named by CARRYALL_SETTINGS, so relocation never has to touch it.
const shimSource = `# Generated by carryall on every start. Edit settings.json instead.
import json
import os

with open(os.environ["` + paths.EnvSettings + `"], encoding="utf-8") as _fh:
    _settings = json.load(_fh)

SECRET_KEY = _settings["secret_key"]
SQLALCHEMY_DATABASE_URI = _settings["metadata_uri"]
SQLALCHEMY_EXAMPLES_URI = _settings["examples_uri"]
UPLOAD_FOLDER = _settings["upload_dir"]
FEATURE_FLAGS = _settings.get("feature_flags") or {}

WTF_CSRF_ENABLED = False
SQLALCHEMY_TRACK_MODIFICATIONS = False
CACHE_CONFIG = {"CACHE_TYPE": "SimpleCache", "CACHE_DEFAULT_TIMEOUT": 300}
DATA_CACHE_CONFIG = {"CACHE_TYPE": "SimpleCache", "CACHE_DEFAULT_TIMEOUT": 600}
`

// ShimSource returns the content of the generated application config module.
func ShimSource() []byte {
	return []byte(shimSource)
}

// ensureShim writes the config shim when it is missing or differs.
func (r *Repairer) ensureShim() (bool, error) {
	path := r.layout.AppConfigShim
	current, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("read config shim %s: %w", path, err)
	}
	if err == nil && bytes.Equal(current, ShimSource()) {
		return false, nil
	}
	if err := fsutil.WriteFileAtomic(path, ShimSource(), 0o644); err != nil {
		return false, fmt.Errorf("write config shim: %w", err)
	}
	r.log.Info().Str("path", path).Msg("Application config shim written")
	return true, nil
}
