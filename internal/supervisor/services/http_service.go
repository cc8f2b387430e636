// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/carryall/internal/logging"
)

// BindError reports that an HTTP service could not bind its address,
// usually because another process already listens there.
type BindError struct {
	Name string
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s: bind %s: %v", e.Name, e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// HTTPServerService runs an *http.Server as a supervised service.
//
// Serve binds the listener itself before serving, so a busy address fails
// fast with *BindError and the service is not restarted, while the bound
// address (including an ephemeral :0 port) is available from Addr once
// Bound is closed. Cancelling the context shuts the server down gracefully
// within the shutdown timeout.
//
//	server := &http.Server{Addr: "127.0.0.1:8089", Handler: router}
//	svc := services.NewHTTPServerService("docs", server, 5*time.Second)
//	err := svc.Serve(ctx)
type HTTPServerService struct {
	name            string
	server          *http.Server
	shutdownTimeout time.Duration
	log             zerolog.Logger

	mu    sync.Mutex
	addr  net.Addr
	bound chan struct{}
}

// NewHTTPServerService creates a service for server. A zero shutdownTimeout
// falls back to 10s.
func NewHTTPServerService(name string, server *http.Server, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		name:            name,
		server:          server,
		shutdownTimeout: shutdownTimeout,
		log:             logging.Component(name),
		bound:           make(chan struct{}),
	}
}

// Serve implements suture.Service. It returns ctx.Err() after a graceful
// shutdown. A bind failure is returned as *BindError joined with
// suture.ErrDoNotRestart.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return errors.Join(&BindError{Name: h.name, Addr: h.server.Addr, Err: err}, suture.ErrDoNotRestart)
	}
	h.mu.Lock()
	h.addr = ln.Addr()
	select {
	case <-h.bound:
	default:
		close(h.bound)
	}
	h.mu.Unlock()
	h.log.Info().Str("addr", ln.Addr().String()).Msg("Listening")

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s failed: %w", h.name, err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s shutdown failed: %w", h.name, err)
		}
		<-errCh
		return ctx.Err()
	}
}

// Bound is closed once the listener is bound.
func (h *HTTPServerService) Bound() <-chan struct{} {
	return h.bound
}

// Addr returns the bound address, or nil before Bound is closed.
func (h *HTTPServerService) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

// String implements fmt.Stringer for suture's logs.
func (h *HTTPServerService) String() string {
	return h.name
}
