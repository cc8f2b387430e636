// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package docserver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func docsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html":               "<html><body>Карта</body></html>",
		"guide.md":                 "# Руководство",
		"notes.txt":                "plain notes",
		"style.css":                "body { color: black; }",
		"maps/regions.geojson":     `{"type":"FeatureCollection","features":[]}`,
		"maps/stations/index.html": "<html>stations</html>",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func get(t *testing.T, h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	h := NewRouter(docsDir(t))
	rec := get(t, h, http.MethodGet, "/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}
}

func TestRouter_StaticContentTypes(t *testing.T) {
	h := NewRouter(docsDir(t))

	tests := []struct {
		path     string
		wantType string
		wantBody string
	}{
		{"/", "text/html; charset=utf-8", "Карта"},
		{"/guide.md", "text/markdown; charset=utf-8", "Руководство"},
		{"/notes.txt", "text/plain; charset=utf-8", "plain notes"},
		{"/style.css", "text/css; charset=utf-8", "color"},
		{"/maps/regions.geojson", "application/geo+json", "FeatureCollection"},
		{"/maps/stations/", "text/html; charset=utf-8", "stations"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, http.MethodGet, tt.path, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := rec.Header().Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantType)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	rec := get(t, NewRouter(docsDir(t)), http.MethodGet, "/missing.md", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRouter_CORS(t *testing.T) {
	h := NewRouter(docsDir(t))

	rec := get(t, h, http.MethodGet, "/maps/regions.geojson", map[string]string{"Origin": "http://127.0.0.1:8088"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}

	preflight := get(t, h, http.MethodOptions, "/maps/regions.geojson", map[string]string{
		"Origin":                        "http://127.0.0.1:8088",
		"Access-Control-Request-Method": http.MethodGet,
	})
	if preflight.Code < 200 || preflight.Code >= 300 {
		t.Errorf("preflight status = %d", preflight.Code)
	}
	if got := preflight.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("preflight Access-Control-Allow-Origin = %q", got)
	}

	plain := get(t, h, http.MethodOptions, "/guide.md", nil)
	if plain.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want 200", plain.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	h := NewRouter(docsDir(t))
	get(t, h, http.MethodGet, "/health", nil)
	get(t, h, http.MethodGet, "/missing", nil)

	rec := get(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`carryall_docs_requests_total{code="2xx"}`, `carryall_docs_requests_total{code="4xx"}`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"/data/regions.GEOJSON": "application/geo+json",
		"/README.markdown":      "text/markdown; charset=utf-8",
		"/docs/":                "text/html; charset=utf-8",
		"/LICENSE":              "",
		"/archive.unknownext":   "",
	}
	for in, want := range tests {
		if got := contentType(in); got != want {
			t.Errorf("contentType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Serve(ctx, Options{Dir: docsDir(t), Port: port, ShutdownTimeout: time.Second})
	}()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/health"
	var body string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			body = string(data)
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if body != "OK" {
		t.Fatalf("health body = %q", body)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() after cancel = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestServe_MissingDir(t *testing.T) {
	err := Serve(context.Background(), Options{Dir: filepath.Join(t.TempDir(), "nope"), Port: 1})
	if err == nil {
		t.Fatal("expected an error for a missing docs directory")
	}
}

func TestServe_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	done := make(chan error, 1)
	go func() {
		done <- Serve(context.Background(), Options{Dir: docsDir(t), Port: port, ShutdownTimeout: time.Second})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrPortInUse) {
			t.Fatalf("Serve() = %v, want ErrPortInUse", err)
		}
		if !strings.Contains(err.Error(), strconv.Itoa(port)) {
			t.Errorf("error %q does not name port %d", err, port)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve kept running on a busy port")
	}
}
