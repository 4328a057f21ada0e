package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/checkfox/go_lead_adapter/internal/logger"
	"github.com/checkfox/go_lead_adapter/internal/models"
	"github.com/checkfox/go_lead_adapter/internal/repository"
	"github.com/checkfox/go_lead_adapter/internal/services"
)

// Deduplicator drops status callbacks that were already seen
type Deduplicator interface {
	IsNew(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// StatusHandler handles message status callbacks
type StatusHandler struct {
	statusRepo repository.MessageStatusRepository
	leadRepo   repository.LeadRepository
	dedup      Deduplicator
}

// NewStatusHandler creates a new StatusHandler. dedup may be nil.
func NewStatusHandler(statusRepo repository.MessageStatusRepository, leadRepo repository.LeadRepository, dedup Deduplicator) *StatusHandler {
	return &StatusHandler{
		statusRepo: statusRepo,
		leadRepo:   leadRepo,
		dedup:      dedup,
	}
}

// StatusResult is the outcome of one status callback
type StatusResult struct {
	RecipientID string                   `json:"recipient_id"`
	Reported    models.MessageRecipient  `json:"reported"`
	Status      *models.MessageRecipient `json:"status,omitempty"`
	Previous    *models.MessageRecipient `json:"previous,omitempty"`
	Replaced    bool                     `json:"replaced"`
	Duplicate   bool                     `json:"duplicate"`
	LeadID      *int64                   `json:"lead_id,omitempty"`
	UpdateCount int                      `json:"update_count,omitempty"`
}

// StatusWebhookResponse lists one result per recipient in the callback
type StatusWebhookResponse struct {
	Results       []StatusResult `json:"results"`
	CorrelationID string         `json:"correlation_id"`
}

// HandleStatusWebhook handles POST /webhooks/status. The body is a single
// status update or an array of them; a batch is reduced to the highest
// ranked update per recipient before anything is stored.
func (h *StatusHandler) HandleStatusWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := ensureCorrelationID(r.Context())

	if r.Method != http.MethodPost {
		respondError(w, ctx, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, ok := readBody(w, r, ctx)
	if !ok {
		return
	}

	updates, err := parseStatusUpdates(body)
	if err != nil {
		var fieldErr *models.DataFieldNotFoundError
		if errors.As(err, &fieldErr) {
			logger.Warn(ctx, "Status callback missing field", "field", fieldErr.Field)
			respondFieldError(w, ctx, "invalid status update", fieldErr.Field)
			return
		}
		logger.LogError(ctx, "Malformed status callback", err)
		respondError(w, ctx, http.StatusBadRequest, err.Error())
		return
	}

	updates = services.ReconcileStatusUpdates(updates)

	results := make([]StatusResult, 0, len(updates))
	for _, update := range updates {
		result, err := h.record(ctx, update)
		if err != nil {
			logger.LogError(ctx, "Failed to record status update", err,
				"recipient_id", update.RecipientID)
			respondError(w, ctx, http.StatusServiceUnavailable, "database error")
			return
		}
		results = append(results, result)
	}

	logger.LogSlowOperation(ctx, "status_webhook", time.Since(startTime))

	respondJSON(w, ctx, http.StatusOK, StatusWebhookResponse{
		Results:       results,
		CorrelationID: correlationIDFrom(ctx),
	})
}

// record stores one update unless it is a duplicate. A dedup key is
// released again when storing fails so the provider's redelivery counts.
func (h *StatusHandler) record(ctx context.Context, update models.StatusUpdate) (StatusResult, error) {
	ctx = context.WithValue(ctx, logger.RecipientIDKey, update.RecipientID)
	result := StatusResult{RecipientID: update.RecipientID, Reported: update.Status}

	key := update.DedupKey()
	if h.dedup != nil {
		isNew, err := h.dedup.IsNew(ctx, key)
		if err != nil {
			logger.Warn(ctx, "Dedup check failed, recording anyway", "error", err.Error())
		} else if !isNew {
			logger.Debug(ctx, "Dropped duplicate status callback", "status", update.Status.String())
			result.Duplicate = true
			return result, nil
		}
	}

	leadID := h.linkLead(ctx, update.RecipientID)

	reconciliation, err := h.statusRepo.RecordStatusUpdate(ctx, update, leadID)
	if err != nil {
		if h.dedup != nil {
			if forgetErr := h.dedup.Forget(ctx, key); forgetErr != nil {
				logger.Warn(ctx, "Failed to release dedup key", "error", forgetErr.Error())
			}
		}
		return result, err
	}

	stored := reconciliation.Record.Recipient()
	previous := ""
	if reconciliation.Previous != nil {
		previous = reconciliation.Previous.String()
	}
	logger.LogRecipientStatus(ctx, update.RecipientID, previous, stored.String(), reconciliation.Replaced)

	result.Status = &stored
	result.Previous = reconciliation.Previous
	result.Replaced = reconciliation.Replaced
	result.LeadID = reconciliation.Record.LeadID
	result.UpdateCount = reconciliation.Record.UpdateCount
	return result, nil
}

// linkLead finds the lead last extracted with the recipient's phone number.
// Lookup failures leave the status unlinked.
func (h *StatusHandler) linkLead(ctx context.Context, recipientID string) *int64 {
	if h.leadRepo == nil {
		return nil
	}
	lead, err := h.leadRepo.FindLatestLeadByPhone(ctx, recipientID)
	if err != nil {
		if !errors.Is(err, repository.ErrLeadNotFound) {
			logger.Warn(ctx, "Failed to link status to lead", "error", err.Error())
		}
		return nil
	}
	return &lead.ID
}

// parseStatusUpdates accepts one update object or an array of them
func parseStatusUpdates(body []byte) ([]models.StatusUpdate, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty status callback")
	}

	if trimmed[0] != '[' {
		update, err := models.ParseStatusUpdate(trimmed)
		if err != nil {
			return nil, err
		}
		return []models.StatusUpdate{update}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, errors.New("empty status callback")
	}

	updates := make([]models.StatusUpdate, 0, len(raws))
	for _, raw := range raws {
		update, err := models.ParseStatusUpdate(raw)
		if err != nil {
			return nil, err
		}
		updates = append(updates, update)
	}
	return updates, nil
}
