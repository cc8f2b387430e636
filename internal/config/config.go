// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

// Package config holds the launcher's own settings: directory layout, ports,
// readiness and shutdown timing, bootstrap options and logging.
//
// Settings are loaded once by the CLI with koanf in three layers:
// built-in defaults, an optional launcher.yaml in the installation root, and
// CARRYALL_* environment overrides. The resulting Config is passed by value to
// every component; no component reads the environment on its own.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/carryall/internal/logging"
	"github.com/tomtom215/carryall/internal/paths"
	"github.com/tomtom215/carryall/internal/validation"
)

// Config is the complete launcher configuration.
type Config struct {
	Layout     LayoutConfig     `koanf:"layout"`
	Service    ServiceConfig    `koanf:"service"`
	Docs       DocsConfig       `koanf:"docs"`
	Readiness  ReadinessConfig  `koanf:"readiness"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Bootstrap  BootstrapConfig  `koanf:"bootstrap"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// LayoutConfig names the well-known subdirectories of the installation root.
type LayoutConfig struct {
	RuntimeDir string `koanf:"runtime_dir" validate:"relpath"`
	AppHome    string `koanf:"app_home" validate:"relpath"`
	DataDir    string `koanf:"data_dir" validate:"relpath"`
	DocsDir    string `koanf:"docs_dir" validate:"relpath"`
	LogsDir    string `koanf:"logs_dir" validate:"relpath"`
	RunDir     string `koanf:"run_dir" validate:"relpath"`
}

// ServiceConfig describes the main analytics service child process.
type ServiceConfig struct {
	Host       string   `koanf:"host" validate:"required,loopback"`
	Port       int      `koanf:"port" validate:"min=1024,max=65535"`
	HealthPath string   `koanf:"health_path" validate:"required,startswith=/"`
	Module     string   `koanf:"module" validate:"required"`
	App        string   `koanf:"app" validate:"required"`
	ExtraArgs  []string `koanf:"extra_args"`
}

// DocsConfig describes the auxiliary documentation server child process.
type DocsConfig struct {
	Enabled bool `koanf:"enabled"`
	Port    int  `koanf:"port" validate:"min=1024,max=65535"`
}

// ReadinessConfig controls health polling of the main service.
type ReadinessConfig struct {
	Interval       time.Duration `koanf:"interval" validate:"gt=0"`
	MaxWait        time.Duration `koanf:"max_wait" validate:"gt=0"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	OpenBrowser    bool          `koanf:"open_browser"`

	// RecheckInterval paces the background health check that keeps running
	// after MaxWait has elapsed. Zero means five polling intervals.
	RecheckInterval time.Duration `koanf:"recheck_interval" validate:"gte=0"`
}

// SupervisorConfig controls child process shutdown.
type SupervisorConfig struct {
	GracePeriod time.Duration `koanf:"grace_period" validate:"gt=0"`
}

// BootstrapConfig controls the dataset preparation pass.
type BootstrapConfig struct {
	Compact   bool   `koanf:"compact"`
	MaxMemory string `koanf:"max_memory" validate:"required"`
	Threads   int    `koanf:"threads" validate:"min=0,max=256"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=console json"`
	Caller bool   `koanf:"caller"`
}

// ErrPortConflict is returned when the main and docs ports are the same.
var ErrPortConflict = errors.New("service.port and docs.port must differ")

// Validate checks field rules and cross-field constraints.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if c.Docs.Enabled && c.Docs.Port == c.Service.Port {
		return fmt.Errorf("%w: both are %d", ErrPortConflict, c.Service.Port)
	}
	if c.Readiness.Interval > c.Readiness.MaxWait {
		return fmt.Errorf("readiness.interval (%s) exceeds readiness.max_wait (%s)",
			c.Readiness.Interval, c.Readiness.MaxWait)
	}
	return nil
}

// Spec converts the layout section for paths.Resolve.
func (c LayoutConfig) Spec() paths.Spec {
	return paths.Spec{
		RuntimeDir: c.RuntimeDir,
		AppHome:    c.AppHome,
		DataDir:    c.DataDir,
		DocsDir:    c.DocsDir,
		LogsDir:    c.LogsDir,
		RunDir:     c.RunDir,
	}
}

// LoggingSettings converts the logging section for logging.Init.
func (c *Config) LoggingSettings() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	cfg.Caller = c.Logging.Caller
	return cfg
}
