// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package readiness

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/carryall/internal/supervisor/services"
)

type fakeProcess struct {
	mu     sync.Mutex
	states []services.State
	exited chan struct{}
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{exited: make(chan struct{})}
}

func (f *fakeProcess) SetState(s services.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
}

func (f *fakeProcess) Exited() <-chan struct{} {
	return f.exited
}

func (f *fakeProcess) States() []services.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]services.State(nil), f.states...)
}

func fastConfig() Config {
	return Config{
		Interval:       10 * time.Millisecond,
		MaxWait:        2 * time.Second,
		RequestTimeout: 500 * time.Millisecond,
	}
}

func TestWatch_ReadyAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	var opened atomic.Int32
	var openedURL string
	w := New(fastConfig(), Hooks{
		OnReady: func(url string) {
			opened.Add(1)
			openedURL = url
		},
		OnTimeout: func(*TimeoutError) { t.Error("OnTimeout must not fire when ready") },
	})
	proc := newFakeProcess()
	target := Target{URL: srv.URL + "/health", Process: proc}

	if got := w.Watch(context.Background(), target); got != OutcomeReady {
		t.Fatalf("Watch() = %v, want ready", got)
	}
	if calls.Load() != 4 {
		t.Errorf("expected 4 polls, got %d", calls.Load())
	}
	if opened.Load() != 1 || openedURL != target.URL {
		t.Errorf("OnReady called %d times with %q", opened.Load(), openedURL)
	}
	if states := proc.States(); len(states) != 1 || states[0] != services.StateReady {
		t.Errorf("states = %v, want [ready]", states)
	}

	// A second watch on the same watcher never opens the client again.
	if got := w.Watch(context.Background(), target); got != OutcomeReady {
		t.Fatalf("second Watch() = %v", got)
	}
	if opened.Load() != 1 {
		t.Errorf("OnReady fired %d times, want exactly once", opened.Load())
	}
}

func TestWatch_TimeoutReportedOnceWithoutOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var timeouts atomic.Int32
	var reported *TimeoutError
	cfg := fastConfig()
	cfg.MaxWait = 150 * time.Millisecond
	w := New(cfg, Hooks{
		OnReady: func(string) { t.Error("OnReady must not fire on timeout") },
		OnTimeout: func(err *TimeoutError) {
			timeouts.Add(1)
			reported = err
		},
	})
	proc := newFakeProcess()
	target := Target{URL: srv.URL + "/health", Process: proc}

	start := time.Now()
	if got := w.Watch(context.Background(), target); got != OutcomeTimeout {
		t.Fatalf("Watch() = %v, want timeout", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
	if got := w.Watch(context.Background(), target); got != OutcomeTimeout {
		t.Fatalf("second Watch() = %v, want timeout", got)
	}
	if timeouts.Load() != 1 {
		t.Errorf("OnTimeout fired %d times, want exactly once", timeouts.Load())
	}
	if reported == nil || !errors.Is(reported, ErrUnhealthy) {
		t.Errorf("timeout error should wrap the last probe error, got %v", reported)
	}
	for _, s := range proc.States() {
		if s != services.StateFailed {
			t.Errorf("unexpected state %v; a timed-out process is failed, not stopped", s)
		}
	}
	select {
	case <-proc.Exited():
		t.Error("watcher must not stop the process")
	default:
	}
}

func TestWatch_ProcessExited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := New(fastConfig(), Hooks{OnReady: func(string) { t.Error("OnReady must not fire") }})
	proc := newFakeProcess()
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(proc.exited)
	}()

	if got := w.Watch(context.Background(), Target{URL: srv.URL, Process: proc}); got != OutcomeExited {
		t.Fatalf("Watch() = %v, want exited", got)
	}
	states := proc.States()
	if len(states) == 0 || states[len(states)-1] != services.StateStopped {
		t.Errorf("states = %v, want last state stopped", states)
	}
}

func TestWatch_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	w := New(fastConfig(), Hooks{})
	if got := w.Watch(ctx, Target{URL: srv.URL, Process: newFakeProcess()}); got != OutcomeCancelled {
		t.Fatalf("Watch() = %v, want cancelled", got)
	}
}

func TestWatch_ConnectionRefusedUntilTimeout(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := fastConfig()
	cfg.MaxWait = 100 * time.Millisecond
	var got *TimeoutError
	w := New(cfg, Hooks{OnTimeout: func(err *TimeoutError) { got = err }})

	if outcome := w.Watch(context.Background(), Target{URL: url}); outcome != OutcomeTimeout {
		t.Fatalf("Watch() = %v, want timeout", outcome)
	}
	if got == nil || got.LastErr == nil {
		t.Fatalf("expected a timeout carrying the connection error, got %v", got)
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   bool
		unhealthy bool
	}{
		{"ok", http.StatusOK, false, false},
		{"no content", http.StatusNoContent, false, false},
		{"unavailable", http.StatusServiceUnavailable, true, true},
		{"not modified", http.StatusNotModified, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := Probe(context.Background(), srv.URL+"/health")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Probe() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.unhealthy && !errors.Is(err, ErrUnhealthy) {
				t.Errorf("Probe() error = %v, want ErrUnhealthy", err)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	w := New(Config{}, Hooks{})
	if w.cfg.Interval != time.Second || w.cfg.MaxWait != 2*time.Minute || w.cfg.RequestTimeout != 5*time.Second {
		t.Errorf("unexpected defaults: %+v", w.cfg)
	}
	if w.cfg.RecheckInterval != 5*time.Second {
		t.Errorf("RecheckInterval = %v, want 5s", w.cfg.RecheckInterval)
	}
}

func TestRecover_LateReadyAfterTimeout(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	var timeouts atomic.Int32
	cfg := fastConfig()
	cfg.MaxWait = 100 * time.Millisecond
	cfg.RecheckInterval = 20 * time.Millisecond
	w := New(cfg, Hooks{
		OnReady:   func(string) { t.Error("OnReady must not fire for a late recovery") },
		OnTimeout: func(*TimeoutError) { timeouts.Add(1) },
	})
	proc := newFakeProcess()
	target := Target{URL: srv.URL + "/health", Process: proc}

	if got := w.Watch(context.Background(), target); got != OutcomeTimeout {
		t.Fatalf("Watch() = %v, want timeout", got)
	}
	healthy.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if got := w.Recover(ctx, target); got != OutcomeRecovered {
		t.Fatalf("Recover() = %v, want recovered", got)
	}
	states := proc.States()
	if len(states) != 2 || states[0] != services.StateFailed || states[1] != services.StateReady {
		t.Errorf("states = %v, want [failed ready]", states)
	}
	if timeouts.Load() != 1 {
		t.Errorf("OnTimeout fired %d times, want 1", timeouts.Load())
	}
}

func TestRecover_StopsOnExitAndCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.RecheckInterval = 10 * time.Millisecond
	w := New(cfg, Hooks{})

	proc := newFakeProcess()
	close(proc.exited)
	if got := w.Recover(context.Background(), Target{URL: srv.URL, Process: proc}); got != OutcomeExited {
		t.Errorf("Recover() after exit = %v, want exited", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if got := w.Recover(ctx, Target{URL: srv.URL, Process: newFakeProcess()}); got != OutcomeCancelled {
		t.Errorf("Recover() after cancel = %v, want cancelled", got)
	}
}

func TestOutcome_String(t *testing.T) {
	for o, want := range map[Outcome]string{
		OutcomeReady:     "ready",
		OutcomeExited:    "exited",
		OutcomeTimeout:   "timeout",
		OutcomeCancelled: "cancelled",
		OutcomeRecovered: "recovered",
		Outcome(9):       "unknown",
	} {
		if o.String() != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", o, o.String(), want)
		}
	}
}
