// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"

	"github.com/fusemem/fusemem/pkg/api/middleware"
)

// getRequestID extracts the request ID set by the request-id middleware.
func getRequestID(ctx context.Context) string {
	if id := middleware.GetRequestID(ctx); id != "" {
		return id
	}
	return "unknown"
}
