package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/checkfox/go_lead_adapter/internal/config"
	"github.com/checkfox/go_lead_adapter/internal/logger"
)

const (
	// CorrelationIDHeader carries the request correlation id in both directions
	CorrelationIDHeader = "X-Correlation-ID"

	// SharedSecretHeader carries the webhook shared secret
	SharedSecretHeader = "X-Shared-Secret"
)

// Correlate attaches a correlation id to the request context, reusing the
// caller's X-Correlation-ID when present. It fits mux.Router.Use.
func Correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), logger.CorrelationIDKey, correlationID)
		w.Header().Set(CorrelationIDHeader, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensureCorrelationID returns a context carrying a correlation id, minting
// one when the request did not pass through Correlate
func ensureCorrelationID(ctx context.Context) context.Context {
	if correlationIDFrom(ctx) != "" {
		return ctx
	}
	return context.WithValue(ctx, logger.CorrelationIDKey, uuid.New().String())
}

// AuthMiddleware provides authentication middleware for webhook endpoints
type AuthMiddleware struct {
	config *config.Config
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{
		config: cfg,
	}
}

// Authenticate validates the shared secret header if authentication is enabled
func (m *AuthMiddleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.config.Auth.Enabled {
			next(w, r)
			return
		}

		ctx := ensureCorrelationID(r.Context())

		providedSecret := r.Header.Get(SharedSecretHeader)
		if providedSecret == "" {
			logger.Warn(ctx, "Authentication failed: missing shared secret header",
				"remote_addr", r.RemoteAddr)
			respondError(w, ctx, http.StatusUnauthorized, "missing authentication header")
			return
		}

		if subtle.ConstantTimeCompare([]byte(providedSecret), []byte(m.config.Auth.SharedSecret)) != 1 {
			logger.Warn(ctx, "Authentication failed: invalid shared secret",
				"remote_addr", r.RemoteAddr)
			respondError(w, ctx, http.StatusUnauthorized, "invalid authentication credentials")
			return
		}

		next(w, r)
	}
}

// RecoveryMiddleware recovers from panics and returns 500 Internal Server Error
type RecoveryMiddleware struct{}

// NewRecoveryMiddleware creates a new RecoveryMiddleware
func NewRecoveryMiddleware() *RecoveryMiddleware {
	return &RecoveryMiddleware{}
}

// Recover wraps a handler with panic recovery. It fits mux.Router.Use.
func (m *RecoveryMiddleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				ctx := ensureCorrelationID(r.Context())
				logger.Error(ctx, "Panic recovered",
					"panic", rec,
					"path", r.URL.Path,
					"stack", string(debug.Stack()))
				respondError(w, ctx, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
