// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// FileNames lists the config file names searched in the installation root.
var FileNames = []string{"launcher.yaml", "launcher.yml"}

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "CARRYALL_"

// defaultConfig returns the built-in defaults, matching the layout shipped in
// the portable archive.
func defaultConfig() *Config {
	return &Config{
		Layout: LayoutConfig{
			RuntimeDir: "python",
			AppHome:    "superset_home",
			DataDir:    "data",
			DocsDir:    "docs",
			LogsDir:    "logs",
			RunDir:     "run",
		},
		Service: ServiceConfig{
			Host:       "127.0.0.1",
			Port:       8088,
			HealthPath: "/health",
			Module:     "superset.cli.main",
			App:        "superset",
			ExtraArgs:  []string{"--with-threads"},
		},
		Docs: DocsConfig{
			Enabled: true,
			Port:    8089,
		},
		Readiness: ReadinessConfig{
			Interval:        time.Second,
			MaxWait:         2 * time.Minute,
			RequestTimeout:  5 * time.Second,
			OpenBrowser:     true,
			RecheckInterval: 5 * time.Second,
		},
		Supervisor: SupervisorConfig{
			GracePeriod: 10 * time.Second,
		},
		Bootstrap: BootstrapConfig{
			Compact:   true,
			MaxMemory: "1GB",
			Threads:   0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Default returns the validated built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load builds the configuration for the installation at root.
//
// Precedence: environment > root/launcher.yaml > defaults.
func Load(root string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(root); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if v, ok := k.Get("service.extra_args").(string); ok {
		if err := k.Set("service.extra_args", strings.Fields(v)); err != nil {
			return nil, fmt.Errorf("failed to split service.extra_args: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first launcher config file present in root.
func findConfigFile(root string) string {
	if root == "" {
		return ""
	}
	for _, name := range FileNames {
		path := filepath.Join(root, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// envMappings maps CARRYALL_* variables (prefix stripped, lower-cased) to
// koanf paths. Unmapped variables are ignored.
var envMappings = map[string]string{
	"log_level":          "logging.level",
	"log_format":         "logging.format",
	"log_caller":         "logging.caller",
	"service_port":       "service.port",
	"service_host":       "service.host",
	"service_extra_args": "service.extra_args",
	"docs_enabled":       "docs.enabled",
	"docs_port":          "docs.port",
	"readiness_interval": "readiness.interval",
	"readiness_max_wait": "readiness.max_wait",
	"readiness_timeout":  "readiness.request_timeout",
	"readiness_recheck":  "readiness.recheck_interval",
	"open_browser":       "readiness.open_browser",
	"grace_period":       "supervisor.grace_period",
	"bootstrap_compact":  "bootstrap.compact",
	"bootstrap_memory":   "bootstrap.max_memory",
	"bootstrap_threads":  "bootstrap.threads",
}

// envTransformFunc transforms CARRYALL_* variable names to koanf paths.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
