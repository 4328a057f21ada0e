package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/checkfox/go_lead_adapter/internal/logger"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error         string `json:"error"`
	Field         string `json:"field,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// correlationIDFrom returns the request correlation id, or "" if none was set
func correlationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(logger.CorrelationIDKey).(string)
	return id
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, ctx context.Context, statusCode int, data interface{}) {
	if correlationID := correlationIDFrom(ctx); correlationID != "" {
		w.Header().Set(CorrelationIDHeader, correlationID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.LogError(ctx, "Failed to encode response", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, ctx context.Context, statusCode int, message string) {
	respondJSON(w, ctx, statusCode, ErrorResponse{
		Error:         message,
		CorrelationID: correlationIDFrom(ctx),
	})
}

// respondFieldError sends a 400 naming the payload field that was missing
// or malformed
func respondFieldError(w http.ResponseWriter, ctx context.Context, message, field string) {
	respondJSON(w, ctx, http.StatusBadRequest, ErrorResponse{
		Error:         message,
		Field:         field,
		CorrelationID: correlationIDFrom(ctx),
	})
}
