package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fusemem/fusemem/config"
	"github.com/fusemem/fusemem/pkg/api/handlers"
	"github.com/fusemem/fusemem/pkg/logger"
)

func newTestRouterDeps(t *testing.T) (*config.Config, logger.Logger, *Handlers) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.RateLimit.Enabled = false

	log := logger.New(&logger.Config{
		Level:  logger.InfoLevel,
		Format: "json",
		Output: "stdout",
	})

	h := &Handlers{
		Health: handlers.NewHealthHandler(nil),
	}
	return cfg, log, h
}

func TestNewRouter_HealthRoutes(t *testing.T) {
	cfg, log, h := newTestRouterDeps(t)
	router := NewRouter(cfg, log, h)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/health", http.StatusOK},
		{"/ready", http.StatusOK},
		{"/status", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("GET %s status = %v, want %v", tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_UnregisteredHandlersNotRouted(t *testing.T) {
	cfg, log, h := newTestRouterDeps(t)
	router := NewRouter(cfg, log, h)

	// Search, feedback and policy handlers are nil, so their routes must 404
	// rather than panic.
	paths := []string{
		"/api/v1/classify",
		"/api/v1/misses",
		"/api/v1/policy",
	}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %v, want %v", path, w.Code, http.StatusNotFound)
		}
	}
}

func TestNewRouter_RequestIDHeader(t *testing.T) {
	cfg, log, h := newTestRouterDeps(t)
	router := NewRouter(cfg, log, h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID header")
	}
}

func TestNewHTTPServer(t *testing.T) {
	cfg, log, h := newTestRouterDeps(t)
	cfg.Server.Port = 0

	srv := NewHTTPServer(cfg, log, h)
	if srv == nil {
		t.Fatal("NewHTTPServer() = nil")
	}
	if srv.server.MaxHeaderBytes != cfg.Server.HTTP.MaxHeaderBytes {
		t.Errorf("MaxHeaderBytes = %d, want %d", srv.server.MaxHeaderBytes, cfg.Server.HTTP.MaxHeaderBytes)
	}
}
