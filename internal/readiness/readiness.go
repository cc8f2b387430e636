// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

// Package readiness decides when the main service is actually serving.
//
// A Watcher polls the service health endpoint on a ticker until it answers
// 2xx, the process exits, or the maximum wait elapses. The client-open hook
// fires at most once per Watcher, and a timeout is reported at most once.
// After a timeout the process is left running; Recover keeps polling at a
// slower pace and marks it Ready if it comes up late, without firing the
// client-open hook.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/carryall/internal/logging"
	"github.com/tomtom215/carryall/internal/metrics"
	"github.com/tomtom215/carryall/internal/supervisor/services"
)

// Outcome is how a Watch ended.
type Outcome int

const (
	OutcomeReady Outcome = iota
	OutcomeExited
	OutcomeTimeout
	OutcomeCancelled
	OutcomeRecovered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeExited:
		return "exited"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// ErrUnhealthy is returned by Probe for a non-2xx response.
var ErrUnhealthy = errors.New("service unhealthy")

// TimeoutError reports that the service never became healthy.
type TimeoutError struct {
	URL     string
	Waited  time.Duration
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("service at %s not ready after %s", e.URL, e.Waited.Round(time.Millisecond))
	if e.LastErr != nil {
		msg += ": " + e.LastErr.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

// Process is the view of a supervised child the watcher needs.
type Process interface {
	SetState(services.State)
	Exited() <-chan struct{}
}

// Target is what to watch.
type Target struct {
	URL     string
	Process Process
}

// Config controls polling.
type Config struct {
	Interval       time.Duration
	MaxWait        time.Duration
	RequestTimeout time.Duration

	// RecheckInterval paces Recover after a timeout.
	RecheckInterval time.Duration
}

// Hooks are called at most once each per Watcher.
type Hooks struct {
	OnReady   func(url string)
	OnTimeout func(err *TimeoutError)
}

// Watcher polls a target until it is ready, exits or times out.
type Watcher struct {
	cfg   Config
	hooks Hooks
	log   zerolog.Logger

	readyOnce   sync.Once
	timeoutOnce sync.Once
}

// New creates a Watcher. Zero durations fall back to 1s interval, 2m max
// wait, 5s per request and a recheck every five intervals.
func New(cfg Config, hooks Hooks) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = 5 * cfg.Interval
	}
	return &Watcher{cfg: cfg, hooks: hooks, log: logging.Component("readiness")}
}

// Watch blocks until the target is ready, its process exits, MaxWait
// elapses or ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, target Target) Outcome {
	start := time.Now()
	deadline := time.NewTimer(w.cfg.MaxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	exited := exitChan(target.Process)
	log := w.log.With().Str("url", target.URL).Logger()
	log.Info().Dur("max_wait", w.cfg.MaxWait).Msg("Waiting for service to become ready")

	var lastErr error
	for {
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		select {
		case <-exited:
			return w.exited(target, log)
		default:
		}

		reqCtx, cancel := context.WithTimeout(ctx, w.cfg.RequestTimeout)
		err := Probe(reqCtx, target.URL)
		cancel()
		recordPoll(err)
		if err == nil {
			w.ready(target, time.Since(start), log)
			return OutcomeReady
		}
		lastErr = err
		log.Debug().Err(err).Msg("Service not ready yet")

		select {
		case <-ctx.Done():
			return OutcomeCancelled
		case <-exited:
			return w.exited(target, log)
		case <-deadline.C:
			w.timeout(target, &TimeoutError{URL: target.URL, Waited: time.Since(start), LastErr: lastErr}, log)
			return OutcomeTimeout
		case <-ticker.C:
		}
	}
}

// Recover polls a target that already timed out until it answers, exits or
// ctx is cancelled. A late answer moves the process from Failed to Ready and
// returns OutcomeRecovered; OnReady is not called since the operator has
// already been told the service failed to start.
func (w *Watcher) Recover(ctx context.Context, target Target) Outcome {
	ticker := time.NewTicker(w.cfg.RecheckInterval)
	defer ticker.Stop()

	exited := exitChan(target.Process)
	log := w.log.With().Str("url", target.URL).Logger()
	log.Info().Dur("interval", w.cfg.RecheckInterval).Msg("Still checking service health in the background")

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return OutcomeCancelled
		case <-exited:
			return w.exited(target, log)
		case <-ticker.C:
		}

		reqCtx, cancel := context.WithTimeout(ctx, w.cfg.RequestTimeout)
		err := Probe(reqCtx, target.URL)
		cancel()
		recordPoll(err)
		if err != nil {
			log.Debug().Err(err).Msg("Service still not ready")
			continue
		}
		if target.Process != nil {
			target.Process.SetState(services.StateReady)
		}
		log.Warn().Dur("after_timeout", time.Since(start)).Msg("Service became ready after the readiness timeout")
		return OutcomeRecovered
	}
}

func (w *Watcher) ready(target Target, elapsed time.Duration, log zerolog.Logger) {
	if target.Process != nil {
		target.Process.SetState(services.StateReady)
	}
	metrics.ReadinessLatency.Set(elapsed.Seconds())
	log.Info().Dur("elapsed", elapsed).Msg("Service ready")
	w.readyOnce.Do(func() {
		if w.hooks.OnReady != nil {
			w.hooks.OnReady(target.URL)
		}
	})
}

func (w *Watcher) exited(target Target, log zerolog.Logger) Outcome {
	target.Process.SetState(services.StateStopped)
	log.Warn().Msg("Service exited before becoming ready")
	return OutcomeExited
}

func (w *Watcher) timeout(target Target, err *TimeoutError, log zerolog.Logger) {
	if target.Process != nil {
		target.Process.SetState(services.StateFailed)
	}
	w.timeoutOnce.Do(func() {
		log.Error().Err(err).Msg("Service did not become ready, leaving it running")
		if w.hooks.OnTimeout != nil {
			w.hooks.OnTimeout(err)
		}
	})
}

func exitChan(p Process) <-chan struct{} {
	if p == nil {
		return nil
	}
	return p.Exited()
}

func recordPoll(err error) {
	switch {
	case err == nil:
		metrics.ReadinessPolls.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrUnhealthy):
		metrics.ReadinessPolls.WithLabelValues("unhealthy").Inc()
	default:
		metrics.ReadinessPolls.WithLabelValues("error").Inc()
	}
}

// probeClient never uses a proxy; every probe targets loopback.
var probeClient = &http.Client{
	Transport: &http.Transport{
		Proxy:             nil,
		DisableKeepAlives: true,
	},
}

// Probe performs one GET of url. A 2xx response is healthy; any other
// status wraps ErrUnhealthy. The request is bounded by ctx.
func Probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := probeClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}
