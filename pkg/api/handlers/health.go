package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/fusemem/fusemem/pkg/api/response"
	"github.com/fusemem/fusemem/pkg/version"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	checks  map[string]HealthCheck
	started time.Time
}

// NewHealthHandler creates a health handler. Checks are run per readiness
// probe, so they must be cheap (a ping, not a query).
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		started: time.Now(),
	}
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe).
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	failures := h.runChecks(r.Context())
	if len(failures) > 0 {
		response.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":    false,
			"failures": failures,
		})
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{
		"ready": true,
	})
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	failures := h.runChecks(r.Context())

	checks := make(map[string]string, len(h.checks))
	for name := range h.checks {
		checks[name] = "ok"
	}
	for name, msg := range failures {
		checks[name] = msg
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"version":        version.Info(),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"checks":         checks,
	})
}

// runChecks runs every registered check and returns failing ones.
func (h *HealthHandler) runChecks(ctx context.Context) map[string]string {
	failures := make(map[string]string)

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := h.checks[name](checkCtx); err != nil {
			failures[name] = err.Error()
		}
		cancel()
	}
	return failures
}
