// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package paths

import (
	"path/filepath"
	"sort"
	"strings"
)

// Environment variable names set for the main service.
const (
	EnvPythonHome   = "PYTHONHOME"
	EnvPythonPath   = "PYTHONPATH"
	EnvNoUserSite   = "PYTHONNOUSERSITE"
	EnvAppHome      = "SUPERSET_HOME"
	EnvAppConfig    = "SUPERSET_CONFIG_PATH"
	EnvSettings     = "CARRYALL_SETTINGS"
	EnvFlaskApp     = "FLASK_APP"
	EnvFlaskEnv     = "FLASK_ENV"
	EnvTelemetry    = "SUPERSET_TELEMETRY"
	EnvPath         = "PATH"
	EnvInstallation = "CARRYALL_ROOT"
)

// RuntimeEnv is the complete environment of the main service process. It is
// computed from the Layout alone.
type RuntimeEnv struct {
	PythonHome   string
	PythonPath   []string
	AppHome      string
	AppConfig    string
	Settings     string
	FlaskApp     string
	Root         string
	SearchPath   []string
	PlatformVars map[string]string
}

// RuntimeEnv derives the main service environment. app is the application
// entry identifier exported as FLASK_APP.
func (l *Layout) RuntimeEnv(app string) RuntimeEnv {
	return RuntimeEnv{
		PythonHome:   l.RuntimeDir,
		PythonPath:   []string{l.AppHome, l.SitePackages},
		AppHome:      l.AppHome,
		AppConfig:    l.AppConfigShim,
		Settings:     l.SettingsFile,
		FlaskApp:     app,
		Root:         l.Root,
		SearchPath:   append([]string{l.ScriptsDir, l.RuntimeDir}, systemDirs()...),
		PlatformVars: platformVars(),
	}
}

// Environ renders the environment as sorted KEY=value pairs for exec.Cmd.Env.
func (e RuntimeEnv) Environ() []string {
	vars := map[string]string{
		EnvPythonHome:   e.PythonHome,
		EnvPythonPath:   joinList(e.PythonPath),
		EnvNoUserSite:   "1",
		EnvAppHome:      e.AppHome,
		EnvAppConfig:    e.AppConfig,
		EnvSettings:     e.Settings,
		EnvFlaskApp:     e.FlaskApp,
		EnvFlaskEnv:     "production",
		EnvTelemetry:    "false",
		EnvInstallation: e.Root,
		EnvPath:         joinList(e.SearchPath),
	}
	for k, v := range e.PlatformVars {
		if _, taken := vars[k]; !taken {
			vars[k] = v
		}
	}
	return render(vars)
}

// SystemEnviron is the minimal environment for helper children such as the
// docs server, which need no runtime variables.
func SystemEnviron() []string {
	vars := platformVars()
	vars[EnvPath] = joinList(systemDirs())
	return render(vars)
}

func joinList(items []string) string {
	return strings.Join(items, string(filepath.ListSeparator))
}

func render(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
