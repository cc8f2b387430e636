// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

// Package launcher sequences one launcher run.
//
// Start runs the stages strictly in order: resolve the installation layout,
// repair persisted configuration, prepare the dataset if it is stale (or
// forced), spawn the supervised children, then watch the main service until
// it is ready. It returns when the context is cancelled or the main service
// exits on its own, after stopping every child. Update runs the first three
// stages with a forced dataset pass and spawns nothing. Init runs the first
// two and then the application's one-time setup commands. Stop asks a
// running instance to shut down.
//
// Every failure is returned as *StageError; ExitCode maps it to the process
// exit status.
package launcher

import (
	"context"
	"errors"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/carryall/internal/bootstrap"
	"github.com/tomtom215/carryall/internal/config"
	"github.com/tomtom215/carryall/internal/logging"
	"github.com/tomtom215/carryall/internal/metrics"
	"github.com/tomtom215/carryall/internal/paths"
	"github.com/tomtom215/carryall/internal/readiness"
	"github.com/tomtom215/carryall/internal/repair"
	"github.com/tomtom215/carryall/internal/supervisor"
	"github.com/tomtom215/carryall/internal/supervisor/services"
)

// MetricsFileName is written to the logs directory at the end of every run.
const MetricsFileName = "launcher.prom"

// ConfigRepairer repairs the persisted settings of an installation.
type ConfigRepairer interface {
	Repair(ctx context.Context) (*repair.Result, error)
	Load() (*repair.Settings, error)
	RepairRegistry(ctx context.Context, s *repair.Settings) (bool, error)
}

// DataBootstrapper prepares the demo dataset.
type DataBootstrapper interface {
	NeedsRun() (bool, string)
	Run(ctx context.Context, force bool) (*bootstrap.Report, error)
}

// MainProcess is the supervised main service as seen by the launcher.
type MainProcess interface {
	readiness.Process
	ExitStatus() (int, error)
}

// ServiceSupervisor runs the child processes.
type ServiceSupervisor interface {
	Start(ctx context.Context) error
	Stop() error
	Main() MainProcess
}

// Factories build the stage implementations. Nil fields use the defaults.
type Factories struct {
	Repairer     func(layout *paths.Layout) ConfigRepairer
	Bootstrapper func(layout *paths.Layout, cfg config.BootstrapConfig) DataBootstrapper
	Supervisor   func(cfg supervisor.Config) ServiceSupervisor
	OpenBrowser  func(url string) error
	Executable   func() (string, error)

	// Signal asks the process pid to stop, or kills it when force is set.
	Signal func(pid int, force bool) error
}

// DefaultFactories returns the production stage implementations.
func DefaultFactories() Factories {
	return Factories{
		Repairer: func(layout *paths.Layout) ConfigRepairer {
			return repair.New(layout)
		},
		Bootstrapper: func(layout *paths.Layout, cfg config.BootstrapConfig) DataBootstrapper {
			return bootstrap.New(layout, cfg)
		},
		Supervisor: func(cfg supervisor.Config) ServiceSupervisor {
			return supervisorAdapter{supervisor.New(cfg, nil)}
		},
		OpenBrowser: OpenBrowser,
		Executable:  paths.Executable,
		Signal:      signalProcess,
	}
}

// supervisorAdapter exposes the main child of a ServiceSupervisor.
type supervisorAdapter struct {
	*supervisor.ServiceSupervisor
}

func (a supervisorAdapter) Main() MainProcess {
	if p := a.Process(supervisor.MainChild); p != nil {
		return p
	}
	return nil
}

// StartOptions modify a Start run.
type StartOptions struct {
	// ForceUpdate runs the dataset pass even when the record is current.
	ForceUpdate bool

	// NoBrowser suppresses the client-open action.
	NoBrowser bool
}

// Launcher runs the stages for the installation at root.
type Launcher struct {
	root string
	cfg  *config.Config
	f    Factories
	log  zerolog.Logger
}

// New creates a Launcher with the production stages.
func New(root string, cfg *config.Config) *Launcher {
	return NewWithFactories(root, cfg, Factories{})
}

// NewWithFactories creates a Launcher with replaced stage implementations.
func NewWithFactories(root string, cfg *config.Config, f Factories) *Launcher {
	def := DefaultFactories()
	if f.Repairer == nil {
		f.Repairer = def.Repairer
	}
	if f.Bootstrapper == nil {
		f.Bootstrapper = def.Bootstrapper
	}
	if f.Supervisor == nil {
		f.Supervisor = def.Supervisor
	}
	if f.OpenBrowser == nil {
		f.OpenBrowser = def.OpenBrowser
	}
	if f.Executable == nil {
		f.Executable = def.Executable
	}
	if f.Signal == nil {
		f.Signal = def.Signal
	}
	return &Launcher{
		root: root,
		cfg:  cfg,
		f:    f,
		log:  logging.Component("launcher"),
	}
}

// Start runs the installation until ctx is cancelled or the main service
// exits. A readiness timeout does not stop the run; it is reported once and
// returned when the run ends.
func (l *Launcher) Start(ctx context.Context, opts StartOptions) error {
	layout, err := l.prepare(ctx, opts.ForceUpdate)
	if layout != nil {
		defer l.writeMetrics(layout)
	}
	if err != nil {
		return err
	}

	var sup ServiceSupervisor
	err = l.stage(StageSupervise, func() error {
		cfg, err := l.supervisorConfig(layout)
		if err != nil {
			return err
		}
		sup = l.f.Supervisor(cfg)
		return sup.Start(ctx)
	})
	if err != nil {
		return err
	}
	return l.run(ctx, layout, sup, opts)
}

// Update refreshes configuration and forces a dataset pass. No service is
// started.
func (l *Launcher) Update(ctx context.Context) error {
	layout, err := l.prepare(ctx, true)
	if layout != nil {
		l.writeMetrics(layout)
	}
	if err == nil {
		l.log.Info().Msg("Update complete")
	}
	return err
}

// prepare runs the environment, config and bootstrap stages. The layout is
// returned whenever the environment stage succeeded.
func (l *Launcher) prepare(ctx context.Context, force bool) (*paths.Layout, error) {
	layout, err := l.prepareConfig(ctx)
	if err != nil {
		return layout, err
	}
	if err := l.stage(StageBootstrap, func() error { return l.bootstrapData(ctx, layout, force) }); err != nil {
		return layout, err
	}
	return layout, nil
}

// prepareConfig runs the environment and config stages.
func (l *Launcher) prepareConfig(ctx context.Context) (*paths.Layout, error) {
	var layout *paths.Layout
	err := l.stage(StageEnvironment, func() error {
		var err error
		if layout, err = paths.Resolve(l.root, l.cfg.Layout.Spec()); err != nil {
			return err
		}
		return layout.EnsureStateDirs()
	})
	if err != nil {
		return nil, err
	}
	l.log.Info().Str("root", layout.Root).Msg("Installation resolved")

	if err := l.stage(StageConfig, func() error { return l.repairConfig(ctx, layout) }); err != nil {
		return layout, err
	}
	return layout, nil
}

// stage runs fn, records its duration and tags a failure with the stage.
func (l *Launcher) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	metrics.RecordStage(name, elapsed, err)
	if err != nil {
		l.log.Debug().Err(err).Str("stage", name).Dur("elapsed", elapsed).Msg("Stage failed")
		return &StageError{Stage: name, Err: err}
	}
	l.log.Debug().Str("stage", name).Dur("elapsed", elapsed).Msg("Stage complete")
	return nil
}

func (l *Launcher) repairConfig(ctx context.Context, layout *paths.Layout) error {
	rep := l.f.Repairer(layout)
	res, err := rep.Repair(ctx)
	if err != nil {
		return err
	}
	settings, err := rep.Load()
	if err != nil {
		return err
	}
	updated, err := rep.RepairRegistry(ctx, settings)
	if err != nil {
		return err
	}
	res.RegistryUpdated = updated

	l.log.Info().
		Bool("created", res.Created).
		Bool("written", res.Written).
		Strs("relocated", res.Relocated).
		Bool("registry_updated", res.RegistryUpdated).
		Msg("Configuration checked")
	return nil
}

func (l *Launcher) bootstrapData(ctx context.Context, layout *paths.Layout, force bool) error {
	report, err := l.f.Bootstrapper(layout, l.cfg.Bootstrap).Run(ctx, force)
	if err != nil {
		return err
	}
	if report.Warning != nil {
		l.log.Warn().Err(report.Warning).Msg("Dataset prepared without compaction")
	}
	return nil
}

// supervisorConfig builds the child process specs for the layout.
func (l *Launcher) supervisorConfig(layout *paths.Layout) (supervisor.Config, error) {
	svc := l.cfg.Service
	cfg := supervisor.Config{
		LockFile:    layout.LockFile,
		PIDFile:     layout.PIDFile,
		Host:        svc.Host,
		GracePeriod: l.cfg.Supervisor.GracePeriod,
		Main: services.ProcessSpec{
			Path:    layout.Interpreter,
			Args:    l.mainArgs(),
			Env:     layout.RuntimeEnv(svc.App).Environ(),
			Dir:     layout.AppHome,
			LogFile: filepath.Join(layout.LogsDir, supervisor.MainChild+".log"),
			Port:    svc.Port,
		},
	}

	if !l.cfg.Docs.Enabled {
		return cfg, nil
	}
	if info, err := os.Stat(layout.DocsDir); err != nil || !info.IsDir() {
		l.log.Warn().Str("dir", layout.DocsDir).Msg("Documentation directory missing, docs server disabled")
		return cfg, nil
	}
	exe, err := l.f.Executable()
	if err != nil {
		return cfg, err
	}
	cfg.Docs = &services.ProcessSpec{
		Path: exe,
		Args: []string{
			"docs",
			"--dir", layout.DocsDir,
			"--host", svc.Host,
			"--port", strconv.Itoa(l.cfg.Docs.Port),
			"--log-level", l.cfg.Logging.Level,
		},
		Env:     paths.SystemEnviron(),
		Dir:     layout.Root,
		LogFile: filepath.Join(layout.LogsDir, supervisor.DocsChild+".log"),
		Port:    l.cfg.Docs.Port,
	}
	return cfg, nil
}

// mainArgs is the interpreter command line of the main service.
func (l *Launcher) mainArgs() []string {
	svc := l.cfg.Service
	args := []string{"-m", svc.Module, "run", "-h", svc.Host, "-p", strconv.Itoa(svc.Port)}
	return append(args, svc.ExtraArgs...)
}

// run watches the main service and waits for shutdown.
func (l *Launcher) run(ctx context.Context, layout *paths.Layout, sup ServiceSupervisor, opts StartOptions) error {
	mainProc := sup.Main()
	if mainProc == nil {
		_ = sup.Stop()
		return &StageError{Stage: StageSupervise, Err: errors.New("main service not registered")}
	}

	var timeoutErr *readiness.TimeoutError
	watcher := readiness.New(readiness.Config{
		Interval:        l.cfg.Readiness.Interval,
		MaxWait:         l.cfg.Readiness.MaxWait,
		RequestTimeout:  l.cfg.Readiness.RequestTimeout,
		RecheckInterval: l.cfg.Readiness.RecheckInterval,
	}, readiness.Hooks{
		OnReady: func(string) { l.onReady(opts) },
		OnTimeout: func(err *readiness.TimeoutError) {
			timeoutErr = err
		},
	})

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	outcome := make(chan readiness.Outcome, 1)
	go func() {
		target := readiness.Target{URL: l.healthURL(), Process: mainProc}
		result := watcher.Watch(watchCtx, target)
		if result == readiness.OutcomeTimeout && watcher.Recover(watchCtx, target) == readiness.OutcomeRecovered {
			result = readiness.OutcomeRecovered
		}
		outcome <- result
	}()

	var exitErr error
	select {
	case <-ctx.Done():
		l.log.Info().Msg("Shutdown requested")
	case <-mainProc.Exited():
		if ctx.Err() == nil {
			code, err := mainProc.ExitStatus()
			exitErr = &MainExitError{
				Code: code,
				Log:  filepath.Join(layout.LogsDir, supervisor.MainChild+".log"),
				Err:  err,
			}
			l.log.Error().Err(exitErr).Msg("Main service stopped on its own")
		}
	}
	cancelWatch()
	result := <-outcome

	stopErr := sup.Stop()
	l.log.Debug().Stringer("readiness", result).Msg("Run finished")

	switch {
	case exitErr != nil:
		metrics.StageFailures.WithLabelValues(StageReadiness).Inc()
		return &StageError{Stage: StageReadiness, Err: exitErr}
	case timeoutErr != nil && result != readiness.OutcomeRecovered:
		metrics.StageFailures.WithLabelValues(StageReadiness).Inc()
		return &StageError{Stage: StageReadiness, Err: timeoutErr}
	case stopErr != nil:
		metrics.StageFailures.WithLabelValues(StageSupervise).Inc()
		return &StageError{Stage: StageSupervise, Err: stopErr}
	}
	return nil
}

func (l *Launcher) onReady(opts StartOptions) {
	appURL := l.appURL()
	l.log.Info().Str("url", appURL).Msg("Service is ready")
	if opts.NoBrowser || !l.cfg.Readiness.OpenBrowser {
		return
	}
	if err := l.f.OpenBrowser(appURL); err != nil {
		l.log.Warn().Err(err).Str("url", appURL).Msg("Could not open browser, open the URL manually")
	}
}

func (l *Launcher) appURL() string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(l.cfg.Service.Host, strconv.Itoa(l.cfg.Service.Port)),
		Path:   "/",
	}
	return u.String()
}

func (l *Launcher) healthURL() string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(l.cfg.Service.Host, strconv.Itoa(l.cfg.Service.Port)),
		Path:   l.cfg.Service.HealthPath,
	}
	return u.String()
}

func (l *Launcher) docsHealthURL() string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(l.cfg.Service.Host, strconv.Itoa(l.cfg.Docs.Port)),
		Path:   "/health",
	}
	return u.String()
}

// writeMetrics dumps the launcher's collectors next to the child logs.
func (l *Launcher) writeMetrics(layout *paths.Layout) {
	path := filepath.Join(layout.LogsDir, MetricsFileName)
	if err := metrics.WriteTextfile(path); err != nil {
		l.log.Warn().Err(err).Str("path", path).Msg("Failed to write metrics file")
	}
}
