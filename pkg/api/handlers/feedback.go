package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fusemem/fusemem/pkg/api/response"
	"github.com/fusemem/fusemem/pkg/retrieval"
)

// FeedbackHandler handles relevance feedback endpoints.
type FeedbackHandler struct {
	engine *retrieval.Engine
	logger feedbackLogger
}

type feedbackLogger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewFeedbackHandler creates a feedback handler.
func NewFeedbackHandler(eng *retrieval.Engine, log feedbackLogger) *FeedbackHandler {
	return &FeedbackHandler{
		engine: eng,
		logger: log,
	}
}

type feedbackResponse struct {
	Accepted bool `json:"accepted"`
}

// Submit handles POST /api/v1/feedback
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var fb retrieval.Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	if err := h.engine.SubmitFeedback(fb); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	h.logger.Debug("feedback accepted",
		"item_id", fb.ItemID,
		"relevant", fb.Relevant,
		"rank", fb.Rank,
	)
	response.JSON(w, http.StatusAccepted, feedbackResponse{Accepted: true})
}
