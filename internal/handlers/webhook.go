package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/checkfox/go_lead_adapter/internal/logger"
	"github.com/checkfox/go_lead_adapter/internal/models"
	"github.com/checkfox/go_lead_adapter/internal/queue"
	"github.com/checkfox/go_lead_adapter/internal/repository"
)

// maxWebhookBodyBytes caps webhook request bodies
const maxWebhookBodyBytes = 1 << 20

// WebhookHandler handles item notifications from the record store
type WebhookHandler struct {
	leadRepo repository.LeadRepository
	queue    queue.Queue
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(leadRepo repository.LeadRepository, q queue.Queue) *WebhookHandler {
	return &WebhookHandler{
		leadRepo: leadRepo,
		queue:    q,
	}
}

// WebhookResponse represents the response returned to webhook callers
type WebhookResponse struct {
	LeadID        int64  `json:"lead_id"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id"`
}

// HandleLeadWebhook handles POST /webhooks/leads. The body is either a full
// items page ({"items": [...]}) or an item notification ({"item_id": ...}).
func (h *WebhookHandler) HandleLeadWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := ensureCorrelationID(r.Context())

	logger.Info(ctx, "Received lead webhook",
		"remote_addr", r.RemoteAddr,
		"method", r.Method,
	)

	if r.Method != http.MethodPost {
		respondError(w, ctx, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, ok := readBody(w, r, ctx)
	if !ok {
		return
	}

	rawPayload, err := decodeObject(body)
	if err != nil {
		logger.LogError(ctx, "Malformed JSON payload", err)
		respondError(w, ctx, http.StatusBadRequest, "malformed JSON payload")
		return
	}

	lead := &models.InboundLead{
		ReceivedAt:    time.Now(),
		RawPayload:    rawPayload,
		SourceHeaders: auditHeaders(r.Header),
		Status:        models.LeadStatusReceived,
	}
	if err := attachNotification(lead, rawPayload); err != nil {
		var fieldErr *models.DataFieldNotFoundError
		if errors.As(err, &fieldErr) {
			logger.Warn(ctx, "Lead webhook missing item reference", "field", fieldErr.Field)
			respondFieldError(w, ctx, "payload must contain items or item_id", fieldErr.Field)
			return
		}
		respondError(w, ctx, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.leadRepo.CreateLead(ctx, lead); err != nil {
		logger.LogError(ctx, "Failed to create lead", err)
		respondError(w, ctx, http.StatusServiceUnavailable, "database error")
		return
	}

	ctx = context.WithValue(ctx, logger.LeadIDKey, lead.ID)
	logger.Info(ctx, "Created lead",
		"status", lead.Status,
		"has_items_page", lead.ItemsPage != nil)

	if err := h.queue.Enqueue(ctx, queue.JobTypeProcessLead, queue.NewJobPayload(lead.ID)); err != nil {
		logger.LogError(ctx, "Failed to enqueue job", err)
		if queue.IsUnavailableError(err) {
			respondError(w, ctx, http.StatusServiceUnavailable, "queue unavailable")
			return
		}
		respondError(w, ctx, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	logger.Info(ctx, "Enqueued processing job")
	logger.LogSlowOperation(ctx, "lead_webhook", time.Since(startTime))

	respondJSON(w, ctx, http.StatusOK, WebhookResponse{
		LeadID:        lead.ID,
		Status:        string(lead.Status),
		CorrelationID: correlationIDFrom(ctx),
	})
}

// readBody reads a size-limited request body, answering the request itself
// when that fails
func readBody(w http.ResponseWriter, r *http.Request, ctx context.Context) ([]byte, bool) {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, ctx, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		logger.LogError(ctx, "Failed to read request body", err)
		respondError(w, ctx, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

// decodeObject decodes a JSON object keeping numbers exact
func decodeObject(body []byte) (models.JSONB, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var payload map[string]interface{}
	if err := decoder.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("payload must be a JSON object")
	}
	return payload, nil
}

// attachNotification records what the worker must start from: an inline
// items page, or an item id to fetch. Page contents are checked later so
// that malformed pages end up as rejected leads rather than lost requests.
func attachNotification(lead *models.InboundLead, payload models.JSONB) error {
	if items, ok := payload["items"]; ok && items != nil {
		lead.ItemsPage = payload
		return nil
	}

	raw, ok := payload["item_id"]
	if !ok {
		return models.NewDataFieldNotFoundError("item_id")
	}
	itemID, ok := itemIDString(raw)
	if !ok {
		return models.NewDataFieldNotFoundError("item_id")
	}
	lead.ItemID = &itemID
	return nil
}

// itemIDString accepts string and numeric item ids
func itemIDString(raw interface{}) (string, bool) {
	var id string
	switch v := raw.(type) {
	case string:
		id = v
	case json.Number:
		id = v.String()
	default:
		return "", false
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

// auditHeaders keeps the first value of each request header, minus the
// shared secret
func auditHeaders(header http.Header) models.JSONB {
	headers := make(models.JSONB, len(header))
	for key, values := range header {
		if len(values) == 0 || strings.EqualFold(key, SharedSecretHeader) {
			continue
		}
		headers[key] = values[0]
	}
	return headers
}
