package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/fusemem/fusemem/pkg/api/response"
	"github.com/fusemem/fusemem/pkg/retrieval"
)

// MissStore lists recorded retrieval misses.
type MissStore interface {
	ListFailures(ctx context.Context, limit int, label retrieval.Label) ([]retrieval.FailureEvent, error)
	CountFailures(ctx context.Context) (int, error)
}

// PolicyHandler exposes the weight policy, tuner state and recorded misses.
type PolicyHandler struct {
	engine *retrieval.Engine
	misses MissStore
	logger policyLogger
}

type policyLogger interface {
	Error(msg string, args ...any)
}

// NewPolicyHandler creates a policy handler. misses may be nil when no
// failure store is configured.
func NewPolicyHandler(eng *retrieval.Engine, misses MissStore, log policyLogger) *PolicyHandler {
	return &PolicyHandler{
		engine: eng,
		misses: misses,
		logger: log,
	}
}

// Profiles handles GET /api/v1/policy
func (h *PolicyHandler) Profiles(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"profiles": h.engine.PolicySnapshot(),
	})
}

// BanditState handles GET /api/v1/policy/bandit
func (h *PolicyHandler) BanditState(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.engine.BanditState())
}

// ListMisses handles GET /api/v1/misses
func (h *PolicyHandler) ListMisses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.misses == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "Miss store is not configured", getRequestID(ctx))
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	label := retrieval.Label(r.URL.Query().Get("label"))

	events, err := h.misses.ListFailures(ctx, limit, label)
	if err != nil {
		h.logger.Error("failed to list misses", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to list misses", getRequestID(ctx))
		return
	}

	total, err := h.misses.CountFailures(ctx)
	if err != nil {
		h.logger.Error("failed to count misses", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to count misses", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"misses": events,
		"total":  total,
		"limit":  limit,
	})
}
