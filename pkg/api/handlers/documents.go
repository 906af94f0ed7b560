package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fusemem/fusemem/pkg/api/response"
	"github.com/fusemem/fusemem/pkg/sources"
)

// DocumentsHandler feeds the in-process source indexes. Any source may be
// nil; documents are indexed into whichever engines are enabled.
type DocumentsHandler struct {
	lexical *sources.LexicalSource
	vector  *sources.VectorSource
	graph   *sources.GraphSource
	logger  documentsLogger
}

type documentsLogger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewDocumentsHandler creates a document ingestion handler.
func NewDocumentsHandler(lexical *sources.LexicalSource, vector *sources.VectorSource, graph *sources.GraphSource, log documentsLogger) *DocumentsHandler {
	return &DocumentsHandler{
		lexical: lexical,
		vector:  vector,
		graph:   graph,
		logger:  log,
	}
}

type documentLink struct {
	To     string  `json:"to"`
	Weight float64 `json:"weight,omitempty"`
}

type indexRequest struct {
	ID       string            `json:"id"`
	Title    string            `json:"title,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Aliases  []string          `json:"aliases,omitempty"`
	Links    []documentLink    `json:"links,omitempty"`
}

type indexResponse struct {
	Indexed bool     `json:"indexed"`
	Engines []string `json:"engines"`
}

// Index handles POST /api/v1/documents
func (h *DocumentsHandler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || strings.TrimSpace(req.Content) == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Fields 'id' and 'content' are required", getRequestID(ctx))
		return
	}

	var engines []string
	if h.lexical != nil {
		h.lexical.Index(req.ID, req.Content, req.Metadata)
		engines = append(engines, h.lexical.Name())
	}
	if h.vector != nil {
		if err := h.vector.IndexText(ctx, req.ID, req.Content, req.Metadata); err != nil {
			h.logger.Error("failed to index document vector", "id", req.ID, "error", err)
			response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to index document", getRequestID(ctx))
			return
		}
		engines = append(engines, h.vector.Name())
	}
	if h.graph != nil {
		name := req.Title
		if name == "" {
			name = req.ID
		}
		h.graph.AddNode(sources.GraphNode{
			ID:      req.ID,
			Name:    name,
			Aliases: req.Aliases,
			Meta:    req.Metadata,
		})
		for _, link := range req.Links {
			if link.To == "" {
				continue
			}
			h.graph.AddEdge(req.ID, link.To, link.Weight)
		}
		engines = append(engines, h.graph.Name())
	}

	if len(engines) == 0 {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "No indexable sources configured", getRequestID(ctx))
		return
	}

	h.logger.Debug("document indexed", "id", req.ID, "engines", engines)
	response.JSON(w, http.StatusCreated, indexResponse{Indexed: true, Engines: engines})
}

// Delete handles DELETE /api/v1/documents/{id}. Graph nodes are kept: edges
// may still be referenced by other documents.
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := chi.URLParam(r, "id")
	if id == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Document id is required", getRequestID(ctx))
		return
	}

	if h.lexical != nil {
		h.lexical.Remove(id)
	}
	if h.vector != nil {
		h.vector.Remove(id)
	}

	w.WriteHeader(http.StatusNoContent)
}
