package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fusemem/fusemem/pkg/api/response"
	"github.com/fusemem/fusemem/pkg/retrieval"
)

// SearchHandler handles retrieval API endpoints.
type SearchHandler struct {
	engine *retrieval.Engine
	logger searchLogger
}

type searchLogger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(eng *retrieval.Engine, log searchLogger) *SearchHandler {
	return &SearchHandler{
		engine: eng,
		logger: log,
	}
}

// --- Request/Response types ---

type searchRequest struct {
	Query        string            `json:"query"`
	Filters      map[string]string `json:"filters,omitempty"`
	Depth        int               `json:"depth,omitempty"`
	Limit        int               `json:"limit,omitempty"`
	ForceProfile string            `json:"force_profile,omitempty"`
	BypassCache  bool              `json:"bypass_cache,omitempty"`
}

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	result, err := h.engine.Retrieve(ctx,
		retrieval.Query{
			Text:    req.Query,
			Filters: req.Filters,
			Depth:   req.Depth,
		},
		retrieval.Options{
			Limit:        req.Limit,
			ForceProfile: req.ForceProfile,
			BypassCache:  req.BypassCache,
		},
	)
	if err != nil {
		h.writeRetrieveError(w, r, req.Query, err, result)
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// writeRetrieveError maps retrieval errors to HTTP responses.
func (h *SearchHandler) writeRetrieveError(w http.ResponseWriter, r *http.Request, query string, err error, result retrieval.Result) {
	ctx := r.Context()

	var unknownProfile *retrieval.UnknownProfileError
	var allDown *retrieval.AllSourcesUnavailableError

	switch {
	case errors.Is(err, retrieval.ErrInvalidQuery):
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
	case errors.As(err, &unknownProfile):
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
	case errors.As(err, &allDown):
		h.logger.Error("all retrieval sources unavailable", "query", query, "error", err)
		response.ErrorWithDetails(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable,
			"All retrieval sources unavailable",
			map[string]interface{}{"status": result.Status},
			getRequestID(ctx))
	default:
		h.logger.Error("retrieval failed", "query", query, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Retrieval failed", getRequestID(ctx))
	}
}

// Classify handles GET /api/v1/classify
func (h *SearchHandler) Classify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query().Get("q")
	if query == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Query parameter 'q' is required", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, h.engine.Classify(query))
}
