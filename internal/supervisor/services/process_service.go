// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/carryall/internal/logging"
	"github.com/tomtom215/carryall/internal/metrics"
)

// ErrSkipped marks a child that was never spawned.
var ErrSkipped = errors.New("child process skipped")

// ProcessSpec describes one child process.
type ProcessSpec struct {
	// Name identifies the child in logs, metrics and the log file name.
	Name string

	// Path is the executable. Args excludes the program name.
	Path string
	Args []string

	// Env is the complete child environment. Nothing is inherited.
	Env []string

	// Dir is the working directory.
	Dir string

	// LogFile receives the child's stdout and stderr (appended).
	LogFile string

	// Port is the loopback port the child is expected to bind.
	Port int

	// GracePeriod bounds the wait between terminate and kill.
	// Default: 10s
	GracePeriod time.Duration
}

// ProcessService runs a child process as a supervised service.
//
// Unlike the HTTP service wrapper, a child that exits on its own is not
// restarted: Serve records the exit and returns suture.ErrDoNotRestart so the
// launcher can decide what an unexpected exit means. When the supervisor
// context is cancelled the child's process group is asked to terminate and
// is killed if it has not exited within GracePeriod.
//
//	svc := services.NewProcessService(services.ProcessSpec{
//	    Name: "main", Path: interpreter, Args: args, Env: env.Environ(),
//	})
//	tree.AddMainService(svc)
type ProcessService struct {
	spec ProcessSpec
	log  zerolog.Logger

	mu        sync.RWMutex
	state     State
	pid       int
	startedAt time.Time
	exitErr   error
	exitCode  int
	served    bool

	exited   chan struct{}
	exitOnce sync.Once
}

// NewProcessService creates a service for the given child. The child is not
// spawned until Serve is called.
func NewProcessService(spec ProcessSpec) *ProcessService {
	if spec.GracePeriod <= 0 {
		spec.GracePeriod = 10 * time.Second
	}
	p := &ProcessService{
		spec:     spec,
		log:      logging.Component("supervisor").With().Str("child", spec.Name).Logger(),
		state:    StateStarting,
		exitCode: -1,
		exited:   make(chan struct{}),
	}
	metrics.ChildState.WithLabelValues(spec.Name).Set(float64(StateStarting))
	return p
}

// Serve implements suture.Service.
func (p *ProcessService) Serve(ctx context.Context) error {
	p.mu.Lock()
	if p.served {
		p.mu.Unlock()
		return suture.ErrDoNotRestart
	}
	p.served = true
	p.mu.Unlock()

	cmd, logFile, err := p.start()
	if err != nil {
		p.finish(StateFailed, err, "failed")
		return fmt.Errorf("%w: %w", suture.ErrDoNotRestart, err)
	}
	defer logFile.Close()

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	select {
	case err := <-waitCh:
		p.finish(StateStopped, err, "exited")
		return suture.ErrDoNotRestart
	case <-ctx.Done():
	}

	p.log.Info().Dur("grace", p.spec.GracePeriod).Msg("Terminating child")
	how := "terminated"
	if err := terminate(cmd); err != nil {
		p.log.Warn().Err(err).Msg("Terminate signal failed, killing")
		how = "killed"
		_ = kill(cmd)
	}

	timer := time.NewTimer(p.spec.GracePeriod)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-timer.C:
		p.log.Warn().Msg("Child did not exit within grace period, killing")
		how = "killed"
		if err := kill(cmd); err != nil {
			p.log.Error().Err(err).Msg("Kill failed")
		}
		waitErr = <-waitCh
	}
	p.finish(StateStopped, waitErr, how)
	return ctx.Err()
}

func (p *ProcessService) start() (*exec.Cmd, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(p.spec.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(p.spec.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	//nolint:gosec // G204: path and args come from the resolved installation layout
	cmd := exec.Command(p.spec.Path, p.spec.Args...)
	cmd.Env = p.spec.Env
	if cmd.Env == nil {
		cmd.Env = []string{}
	}
	cmd.Dir = p.spec.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, nil, fmt.Errorf("start %s: %w", p.spec.Name, err)
	}

	p.mu.Lock()
	p.pid = cmd.Process.Pid
	p.startedAt = time.Now()
	p.mu.Unlock()

	p.log.Info().Int("pid", cmd.Process.Pid).Str("log", p.spec.LogFile).Msg("Child started")
	return cmd, logFile, nil
}

// finish records the end of the child exactly once.
func (p *ProcessService) finish(state State, err error, how string) {
	p.mu.Lock()
	p.exitErr = err
	var exitErr *exec.ExitError
	switch {
	case err == nil && how != "failed":
		p.exitCode = 0
	case errors.As(err, &exitErr):
		p.exitCode = exitErr.ExitCode()
	}
	p.setStateLocked(state)
	code := p.exitCode
	p.mu.Unlock()

	metrics.ChildExits.WithLabelValues(p.spec.Name, how).Inc()
	event := p.log.Info()
	if how == "failed" || how == "killed" {
		event = p.log.Warn()
	}
	event.Str("how", how).Int("exit_code", code).AnErr("error", err).Msg("Child finished")

	p.exitOnce.Do(func() { close(p.exited) })
}

// Skip marks the child as failed without spawning it.
func (p *ProcessService) Skip(reason error) {
	p.mu.Lock()
	p.served = true
	p.exitErr = fmt.Errorf("%w: %w", ErrSkipped, reason)
	p.setStateLocked(StateFailed)
	p.mu.Unlock()

	p.log.Warn().Err(reason).Msg("Child skipped")
	p.exitOnce.Do(func() { close(p.exited) })
}

// SetState moves the child to a new lifecycle state. Invalid transitions,
// including any transition out of Stopped, are ignored. A child that is no
// longer running never becomes Ready.
func (p *ProcessService) SetState(s State) {
	if s == StateReady {
		select {
		case <-p.exited:
			return
		default:
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setStateLocked(s)
}

func (p *ProcessService) setStateLocked(s State) {
	if !p.state.canTransition(s) {
		return
	}
	p.state = s
	metrics.ChildState.WithLabelValues(p.spec.Name).Set(float64(s))
}

// State returns the current lifecycle state.
func (p *ProcessService) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Exited is closed once the child has exited, failed to start or was skipped.
func (p *ProcessService) Exited() <-chan struct{} {
	return p.exited
}

// ExitStatus returns the exit code (-1 if unknown or signalled) and the error
// reported by the process wait, if any.
func (p *ProcessService) ExitStatus() (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode, p.exitErr
}

// PID returns the child's process ID, or 0 before it started.
func (p *ProcessService) PID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pid
}

// StartedAt returns when the child was spawned.
func (p *ProcessService) StartedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.startedAt
}

// Name returns the child name.
func (p *ProcessService) Name() string {
	return p.spec.Name
}

// Port returns the loopback port the child binds.
func (p *ProcessService) Port() int {
	return p.spec.Port
}

// String implements fmt.Stringer for suture logging.
func (p *ProcessService) String() string {
	return "process:" + p.spec.Name
}
