package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/checkfox/go_lead_adapter/internal/logger"
)

// healthTimeout bounds each dependency check
const healthTimeout = 2 * time.Second

// HealthChecker is a dependency the service needs in order to work
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports whether the service's dependencies are reachable
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler creates a HealthHandler over named dependencies
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HealthResponse lists each dependency as "ok" or its error
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HandleHealth handles GET /health. Any failing dependency turns the
// response into a 503.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	response := HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		err := h.checks[name].HealthCheck(checkCtx)
		cancel()

		if err != nil {
			logger.Warn(ctx, "Health check failed", "dependency", name, "error", err.Error())
			response.Status = "unavailable"
			response.Checks[name] = err.Error()
			continue
		}
		response.Checks[name] = "ok"
	}

	statusCode := http.StatusOK
	if response.Status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}
	respondJSON(w, ctx, statusCode, response)
}
