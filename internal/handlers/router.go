package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/checkfox/go_lead_adapter/internal/config"
)

// Routes bundles the handlers served by the API
type Routes struct {
	Webhook *WebhookHandler
	Status  *StatusHandler
	Stats   *StatsHandler
	Health  *HealthHandler
}

// NewRouter builds the API router. Webhooks sit behind shared-secret auth;
// every route gets a correlation id and panic recovery.
func NewRouter(cfg *config.Config, routes Routes) *mux.Router {
	auth := NewAuthMiddleware(cfg)
	recovery := NewRecoveryMiddleware()

	router := mux.NewRouter()
	router.Use(Correlate, recovery.Recover)

	router.HandleFunc("/webhooks/leads", auth.Authenticate(routes.Webhook.HandleLeadWebhook)).Methods(http.MethodPost)
	router.HandleFunc("/webhooks/status", auth.Authenticate(routes.Status.HandleStatusWebhook)).Methods(http.MethodPost)

	stats := router.PathPrefix("/stats").Subrouter()
	stats.HandleFunc("/leads/counts", routes.Stats.HandleLeadCountsByStatus).Methods(http.MethodGet)
	stats.HandleFunc("/leads/recent", routes.Stats.HandleRecentLeads).Methods(http.MethodGet)
	stats.HandleFunc("/leads/{id:[0-9]+}/history", routes.Stats.HandleLeadHistory).Methods(http.MethodGet)
	// registered before the recipient route so "counts" is not read as an id
	stats.HandleFunc("/status/counts", routes.Stats.HandleStatusCounts).Methods(http.MethodGet)
	stats.HandleFunc("/status/{recipient_id}", routes.Stats.HandleRecipientStatus).Methods(http.MethodGet)

	router.HandleFunc("/health", routes.Health.HandleHealth).Methods(http.MethodGet)

	return router
}
