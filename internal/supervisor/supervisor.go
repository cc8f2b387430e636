// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/tomtom215/carryall/internal/fsutil"
	"github.com/tomtom215/carryall/internal/logging"
	"github.com/tomtom215/carryall/internal/supervisor/services"
)

// Child names.
const (
	MainChild = "main"
	DocsChild = "docs"
)

// stopMargin is added to the grace period for every bounded shutdown wait.
const stopMargin = 5 * time.Second

// State is re-exported for callers that only import this package.
type State = services.State

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("supervisor already started")

	// ErrStopTimeout is returned when the tree did not stop within the grace
	// period plus margin.
	ErrStopTimeout = errors.New("supervisor did not stop in time")
)

// AlreadyRunningError reports that another launcher instance owns the
// installation. Exactly one of Lock or Port is set.
type AlreadyRunningError struct {
	Lock string
	Port int
	Err  error
}

func (e *AlreadyRunningError) Error() string {
	if e.Port != 0 {
		return fmt.Sprintf("another instance is already running: port %d is in use", e.Port)
	}
	return fmt.Sprintf("another instance is already running: %s is locked", e.Lock)
}

func (e *AlreadyRunningError) Unwrap() error {
	return e.Err
}

// Config describes the children and the single-instance guard.
type Config struct {
	// LockFile is held with an exclusive advisory lock while running.
	LockFile string

	// PIDFile receives the launcher PID once the children are spawned.
	PIDFile string

	// Host is the loopback address the children bind.
	Host string

	// Main is the analytics service. Required.
	Main services.ProcessSpec

	// Docs is the documentation server. Nil disables it.
	Docs *services.ProcessSpec

	// GracePeriod bounds terminate-to-kill for every child.
	GracePeriod time.Duration
}

// ServiceSupervisor owns the child processes for one launcher run.
type ServiceSupervisor struct {
	cfg    Config
	logger *slog.Logger
	log    zerolog.Logger

	mu       sync.Mutex
	started  bool
	lock     *flock.Flock
	tree     *SupervisorTree
	children map[string]*services.ProcessService
	cancel   context.CancelFunc
	done     <-chan error

	stopOnce sync.Once
	stopErr  error
}

// New creates a supervisor. logger receives suture's own events.
func New(cfg Config, logger *slog.Logger) *ServiceSupervisor {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 10 * time.Second
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if logger == nil {
		logger = logging.NewSlogLogger("suture")
	}
	cfg.Main.Name = MainChild
	cfg.Main.GracePeriod = cfg.GracePeriod
	if cfg.Docs != nil {
		docs := *cfg.Docs
		docs.Name = DocsChild
		docs.GracePeriod = cfg.GracePeriod
		cfg.Docs = &docs
	}
	return &ServiceSupervisor{
		cfg:      cfg,
		logger:   logger,
		log:      logging.Component("supervisor"),
		children: make(map[string]*services.ProcessService),
	}
}

// Start takes the single-instance guard and spawns the children. If the
// guard cannot be taken nothing is spawned and *AlreadyRunningError is
// returned. A busy docs port only skips the docs child.
func (s *ServiceSupervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	lock, err := acquireLock(s.cfg.LockFile)
	if err != nil {
		return err
	}
	if err := ProbePort(s.cfg.Host, s.cfg.Main.Port); err != nil {
		_ = lock.Unlock()
		return &AlreadyRunningError{Port: s.cfg.Main.Port, Err: err}
	}

	tree := NewSupervisorTree(s.logger, TreeConfig{
		FailureBackoff:  time.Second,
		ShutdownTimeout: s.cfg.GracePeriod + stopMargin,
	})

	mainSvc := services.NewProcessService(s.cfg.Main)
	s.children[MainChild] = mainSvc
	tree.AddMainService(mainSvc)

	if s.cfg.Docs != nil {
		docsSvc := services.NewProcessService(*s.cfg.Docs)
		s.children[DocsChild] = docsSvc
		if err := ProbePort(s.cfg.Host, s.cfg.Docs.Port); err != nil {
			docsSvc.Skip(err)
		} else {
			tree.AddAuxService(docsSvc)
		}
	}

	treeCtx, cancel := context.WithCancel(ctx)
	s.lock = lock
	s.tree = tree
	s.cancel = cancel
	s.done = tree.ServeBackground(treeCtx)
	s.started = true

	if err := s.writePIDFile(); err != nil {
		s.log.Warn().Err(err).Str("path", s.cfg.PIDFile).Msg("Failed to write pid file")
	}
	s.log.Info().Int("main_port", s.cfg.Main.Port).Int("children", len(s.children)).Msg("Children spawned")
	return nil
}

func acquireLock(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return nil, &AlreadyRunningError{Lock: path}
	}
	return lock, nil
}

func (s *ServiceSupervisor) writePIDFile() error {
	if s.cfg.PIDFile == "" {
		return nil
	}
	return fsutil.WriteFileAtomic(s.cfg.PIDFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// Stop terminates every child, waits for the tree (bounded by the grace
// period plus a margin), then releases the guard. Safe to call more than
// once and before Start.
func (s *ServiceSupervisor) Stop() error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}
	s.stopOnce.Do(func() {
		s.stopErr = s.stop()
	})
	return s.stopErr
}

func (s *ServiceSupervisor) stop() error {
	s.log.Info().Dur("grace", s.cfg.GracePeriod).Msg("Stopping children")
	s.cancel()

	var err error
	timer := time.NewTimer(s.cfg.GracePeriod + 2*stopMargin)
	defer timer.Stop()

	select {
	case <-s.done:
		report, _ := s.tree.UnstoppedServiceReport()
		for _, u := range report {
			s.log.Error().Str("service", u.Name).Msg("Service did not stop within timeout")
		}
		if len(report) > 0 {
			err = fmt.Errorf("%w: %d services still running", ErrStopTimeout, len(report))
		}
	case <-timer.C:
		err = ErrStopTimeout
	}

	if s.cfg.PIDFile != "" {
		if rmErr := os.Remove(s.cfg.PIDFile); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.log.Warn().Err(rmErr).Msg("Failed to remove pid file")
		}
	}
	if unlockErr := s.lock.Unlock(); unlockErr != nil {
		s.log.Warn().Err(unlockErr).Msg("Failed to release instance lock")
	}

	if err != nil {
		s.log.Error().Err(err).Msg("Shutdown incomplete")
	} else {
		s.log.Info().Msg("All children stopped")
	}
	return err
}

// States returns the lifecycle state of every child.
func (s *ServiceSupervisor) States() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make(map[string]State, len(s.children))
	for name, child := range s.children {
		states[name] = child.State()
	}
	return states
}

// Process returns the named child, or nil before Start or if not configured.
func (s *ServiceSupervisor) Process(name string) *services.ProcessService {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.children[name]
}

// Exited returns a channel closed when the named child has exited, or nil
// if there is no such child.
func (s *ServiceSupervisor) Exited(name string) <-chan struct{} {
	if p := s.Process(name); p != nil {
		return p.Exited()
	}
	return nil
}

// ProbePort reports an error if host:port cannot be bound.
func ProbePort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}

// IsLocked reports whether another process holds the instance lock at path.
func IsLocked(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return false, err
	}
	if locked {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}
