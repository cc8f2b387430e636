// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package launcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/tomtom215/carryall/internal/paths"
	"github.com/tomtom215/carryall/internal/supervisor"
)

// ErrProcessGone is returned by a Signal func when the process no longer exists.
var ErrProcessGone = errors.New("process already exited")

// ErrStillRunning is returned by Stop when the instance lock is still held
// after the process was killed.
var ErrStillRunning = errors.New("instance did not release its lock")

// stopPollInterval paces the lock checks while waiting for a stop.
const stopPollInterval = 100 * time.Millisecond

// killWait bounds the wait for the lock after a forced kill.
const killWait = 5 * time.Second

// StopResult describes what Stop did.
type StopResult struct {
	Running bool `json:"running"`
	PID     int  `json:"pid,omitempty"`
	Forced  bool `json:"forced"`
}

// Stop asks the running instance to shut down and waits until it releases
// the instance lock. The launcher stops its children itself; if it has not
// let go of the lock within wait it is killed. A zero wait means the child
// grace period plus a margin. A stale pid file left by a crashed run is
// removed.
func (l *Launcher) Stop(ctx context.Context, wait time.Duration) (*StopResult, error) {
	layout, err := paths.Resolve(l.root, l.cfg.Layout.Spec())
	if err != nil {
		return nil, &StageError{Stage: StageEnvironment, Err: err}
	}
	if wait <= 0 {
		wait = l.cfg.Supervisor.GracePeriod + killWait
	}

	res := &StopResult{}
	running, err := supervisor.IsLocked(layout.LockFile)
	if err != nil {
		return nil, &StageError{Stage: StageSupervise, Err: fmt.Errorf("inspect instance lock: %w", err)}
	}
	if !running {
		l.removePIDFile(layout.PIDFile)
		l.log.Info().Msg("No running instance")
		return res, nil
	}

	pid, err := readPID(layout.PIDFile)
	if err != nil {
		return nil, &StageError{Stage: StageSupervise, Err: fmt.Errorf("instance is running but its pid is unknown: %w", err)}
	}
	res.Running, res.PID = true, pid
	log := l.log.With().Int("pid", pid).Logger()

	log.Info().Dur("wait", wait).Msg("Stopping running instance")
	if err := l.f.Signal(pid, false); err != nil && !errors.Is(err, ErrProcessGone) {
		return res, &StageError{Stage: StageSupervise, Err: fmt.Errorf("signal pid %d: %w", pid, err)}
	}
	if released, err := waitUnlocked(ctx, layout.LockFile, wait); err != nil || released {
		if err != nil {
			return res, &StageError{Stage: StageSupervise, Err: err}
		}
		log.Info().Msg("Instance stopped")
		return res, nil
	}

	log.Warn().Dur("waited", wait).Msg("Instance did not stop in time, killing it")
	res.Forced = true
	if err := l.f.Signal(pid, true); err != nil && !errors.Is(err, ErrProcessGone) {
		return res, &StageError{Stage: StageSupervise, Err: fmt.Errorf("kill pid %d: %w", pid, err)}
	}
	released, err := waitUnlocked(ctx, layout.LockFile, killWait)
	if err != nil {
		return res, &StageError{Stage: StageSupervise, Err: err}
	}
	if !released {
		return res, &StageError{Stage: StageSupervise, Err: fmt.Errorf("%w: %s", ErrStillRunning, layout.LockFile)}
	}
	l.removePIDFile(layout.PIDFile)
	log.Info().Msg("Instance killed")
	return res, nil
}

func (l *Launcher) removePIDFile(path string) {
	err := os.Remove(path)
	switch {
	case err == nil:
		l.log.Debug().Str("path", path).Msg("Removed stale pid file")
	case !errors.Is(err, fs.ErrNotExist):
		l.log.Warn().Err(err).Str("path", path).Msg("Failed to remove pid file")
	}
}

// waitUnlocked polls the lock file until nobody holds it, wait elapses or
// ctx is cancelled. It reports whether the lock was released.
func waitUnlocked(ctx context.Context, lockFile string, wait time.Duration) (bool, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()

	for {
		locked, err := supervisor.IsLocked(lockFile)
		if err != nil {
			return false, fmt.Errorf("inspect instance lock: %w", err)
		}
		if !locked {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
		}
	}
}
