// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

// Package docserver serves the bundled documentation over loopback HTTP.
//
// It runs as the launcher's auxiliary child process (the hidden "docs"
// command). Routes:
//
//	GET /health   plain "OK"
//	GET /metrics  Prometheus exposition
//	GET /*        static files from the docs directory
package docserver

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/carryall/internal/logging"
	"github.com/tomtom215/carryall/internal/middleware"
	"github.com/tomtom215/carryall/internal/supervisor/services"
)

// Options configures the docs server.
type Options struct {
	Dir             string
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// slowRequest is the latency above which a request is logged as a warning.
const slowRequest = 500 * time.Millisecond

// contentTypes overrides or fills in types the mime table gets wrong or
// lacks on some platforms.
var contentTypes = map[string]string{
	".geojson":  "application/geo+json",
	".md":       "text/markdown; charset=utf-8",
	".markdown": "text/markdown; charset=utf-8",
	".json":     "application/json",
	".js":       "text/javascript; charset=utf-8",
	".svg":      "image/svg+xml",
}

// NewRouter builds the docs handler for dir.
func NewRouter(dir string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"X-Requested-With", "Content-Type"},
		MaxAge:         86400,
	}))
	r.Use(middleware.Metrics)
	r.Use(middleware.AccessLog(slowRequest))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	files := http.FileServer(http.Dir(dir))
	static := func(w http.ResponseWriter, req *http.Request) {
		if ct := contentType(req.URL.Path); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		files.ServeHTTP(w, req)
	}
	r.Get("/*", static)
	r.Head("/*", static)
	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// contentType returns the response type for a static path, always with a
// UTF-8 charset for text types. Empty means let the file server sniff.
func contentType(urlPath string) string {
	ext := strings.ToLower(path.Ext(urlPath))
	if strings.HasSuffix(urlPath, "/") {
		ext = ".html"
	}
	if ext == "" {
		return ""
	}
	ct, ok := contentTypes[ext]
	if !ok {
		ct = mime.TypeByExtension(ext)
	}
	if ct == "" {
		return ""
	}
	if strings.HasPrefix(ct, "text/") && !strings.Contains(ct, "charset") {
		ct += "; charset=utf-8"
	}
	return ct
}

// ErrPortInUse is returned by Serve when the docs address cannot be bound.
var ErrPortInUse = errors.New("docs port is in use")

// Serve runs the docs server until ctx is cancelled. A cancelled context is
// a clean stop and returns nil. A busy port fails before any request is
// served with an error matching ErrPortInUse.
func Serve(ctx context.Context, opts Options) error {
	info, err := os.Stat(opts.Dir)
	if err != nil {
		return fmt.Errorf("docs directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("docs directory %s is not a directory", opts.Dir)
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Handler:           NewRouter(opts.Dir),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logging.Info().Str("addr", server.Addr).Str("dir", opts.Dir).Msg("Docs server starting")
	err = services.NewHTTPServerService("docs", server, opts.ShutdownTimeout).Serve(ctx)
	var bindErr *services.BindError
	if errors.As(err, &bindErr) {
		return fmt.Errorf("%w: %s: %w", ErrPortInUse, bindErr.Addr, bindErr.Err)
	}
	if errors.Is(err, context.Canceled) {
		logging.Info().Msg("Docs server stopped")
		return nil
	}
	return err
}
