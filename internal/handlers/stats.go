package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/checkfox/go_lead_adapter/internal/logger"
	"github.com/checkfox/go_lead_adapter/internal/models"
	"github.com/checkfox/go_lead_adapter/internal/queue"
	"github.com/checkfox/go_lead_adapter/internal/repository"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// StatsHandler handles statistics and observability endpoints
type StatsHandler struct {
	leadRepo            repository.LeadRepository
	deliveryAttemptRepo repository.DeliveryAttemptRepository
	statusRepo          repository.MessageStatusRepository
	queue               queue.Queue
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(
	leadRepo repository.LeadRepository,
	deliveryAttemptRepo repository.DeliveryAttemptRepository,
	statusRepo repository.MessageStatusRepository,
	q queue.Queue,
) *StatsHandler {
	return &StatsHandler{
		leadRepo:            leadRepo,
		deliveryAttemptRepo: deliveryAttemptRepo,
		statusRepo:          statusRepo,
		queue:               q,
	}
}

// LeadCountsByStatus represents lead counts grouped by status
type LeadCountsByStatus struct {
	Received          int   `json:"received"`
	Rejected          int   `json:"rejected"`
	Ready             int   `json:"ready"`
	Delivered         int   `json:"delivered"`
	Failed            int   `json:"failed"`
	PermanentlyFailed int   `json:"permanently_failed"`
	Total             int   `json:"total"`
	PendingJobs       int64 `json:"pending_jobs"`
}

// RecentLeadSummary represents a summary of a recent lead
type RecentLeadSummary struct {
	ID              int64   `json:"id"`
	ReceivedAt      string  `json:"received_at"`
	Status          string  `json:"status"`
	ItemID          *string `json:"item_id,omitempty"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
}

// LeadHistoryResponse represents the full history of a lead
type LeadHistoryResponse struct {
	ID               int64                    `json:"id"`
	ReceivedAt       string                   `json:"received_at"`
	Status           string                   `json:"status"`
	ItemID           *string                  `json:"item_id,omitempty"`
	RejectionReason  *string                  `json:"rejection_reason,omitempty"`
	RejectionDetail  *string                  `json:"rejection_detail,omitempty"`
	RawPayload       map[string]interface{}   `json:"raw_payload"`
	ItemsPage        map[string]interface{}   `json:"items_page,omitempty"`
	LeadName         *string                  `json:"lead_name,omitempty"`
	PhoneNumber      *string                  `json:"phone_number,omitempty"`
	MessagePayload   map[string]interface{}   `json:"message_payload,omitempty"`
	DeliveryAttempts []DeliveryAttemptSummary `json:"delivery_attempts"`
}

// DeliveryAttemptSummary represents a summary of a delivery attempt
type DeliveryAttemptSummary struct {
	AttemptNo    int     `json:"attempt_no"`
	AttemptedAt  string  `json:"attempted_at"`
	Success      bool    `json:"success"`
	StatusCode   *int    `json:"status_code,omitempty"`
	MessageID    *string `json:"message_id,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// RecipientStatusResponse is the reconciled status of one recipient. Final is
// set once no further progress is expected for the message.
type RecipientStatusResponse struct {
	RecipientID string                  `json:"recipient_id"`
	Status      models.MessageRecipient `json:"status"`
	Rank        int                     `json:"rank"`
	Final       bool                    `json:"final"`
	LeadID      *int64                  `json:"lead_id,omitempty"`
	UpdateCount int                     `json:"update_count"`
	UpdatedAt   string                  `json:"updated_at"`
}

// HandleLeadCountsByStatus handles GET /stats/leads/counts
func (h *StatsHandler) HandleLeadCountsByStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger.Info(ctx, "Fetching lead counts by status")

	if r.Method != http.MethodGet {
		respondError(w, ctx, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	counts, err := h.leadRepo.GetLeadCountsByStatus(ctx)
	if err != nil {
		logger.LogError(ctx, "Failed to get lead counts", err)
		respondError(w, ctx, http.StatusInternalServerError, "internal server error")
		return
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	response := LeadCountsByStatus{
		Received:          counts[string(models.LeadStatusReceived)],
		Rejected:          counts[string(models.LeadStatusRejected)],
		Ready:             counts[string(models.LeadStatusReady)],
		Delivered:         counts[string(models.LeadStatusDelivered)],
		Failed:            counts[string(models.LeadStatusFailed)],
		PermanentlyFailed: counts[string(models.LeadStatusPermanentlyFailed)],
		Total:             total,
	}

	// queue depth is informational; the counts are still served without it
	if h.queue != nil {
		pending, err := h.queue.Pending(ctx)
		if err != nil {
			logger.Warn(ctx, "Failed to count pending jobs", "error", err.Error())
		} else {
			response.PendingJobs = pending
		}
	}

	respondJSON(w, ctx, http.StatusOK, response)
}

// HandleRecentLeads handles GET /stats/leads/recent?limit=N
func (h *StatsHandler) HandleRecentLeads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger.Info(ctx, "Fetching recent leads")

	if r.Method != http.MethodGet {
		respondError(w, ctx, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		respondError(w, ctx, http.StatusBadRequest, "invalid limit")
		return
	}

	leads, err := h.leadRepo.GetRecentLeads(ctx, limit)
	if err != nil {
		logger.LogError(ctx, "Failed to get recent leads", err)
		respondError(w, ctx, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]RecentLeadSummary, 0, len(leads))
	for _, lead := range leads {
		response = append(response, RecentLeadSummary{
			ID:              lead.ID,
			ReceivedAt:      lead.ReceivedAt.Format(time.RFC3339),
			Status:          string(lead.Status),
			ItemID:          lead.ItemID,
			RejectionReason: lead.RejectionReason,
		})
	}

	respondJSON(w, ctx, http.StatusOK, response)
}

// HandleLeadHistory handles GET /stats/leads/{id}/history
func (h *StatsHandler) HandleLeadHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		respondError(w, ctx, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	leadID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || leadID <= 0 {
		respondError(w, ctx, http.StatusBadRequest, "invalid lead ID")
		return
	}

	ctx = context.WithValue(ctx, logger.LeadIDKey, leadID)
	logger.Info(ctx, "Fetching lead history")

	lead, err := h.leadRepo.GetLeadByID(ctx, leadID)
	if errors.Is(err, repository.ErrLeadNotFound) {
		respondError(w, ctx, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		logger.LogError(ctx, "Failed to get lead", err)
		respondError(w, ctx, http.StatusInternalServerError, "internal server error")
		return
	}

	attempts, err := h.deliveryAttemptRepo.GetDeliveryAttemptsByLeadID(ctx, leadID)
	if err != nil {
		logger.LogError(ctx, "Failed to get delivery attempts", err)
		respondError(w, ctx, http.StatusInternalServerError, "internal server error")
		return
	}

	attemptSummaries := make([]DeliveryAttemptSummary, 0, len(attempts))
	for _, attempt := range attempts {
		attemptSummaries = append(attemptSummaries, DeliveryAttemptSummary{
			AttemptNo:    attempt.AttemptNo,
			AttemptedAt:  attempt.RequestedAt.Format(time.RFC3339),
			Success:      attempt.Success,
			StatusCode:   attempt.ResponseStatus,
			MessageID:    attempt.MessageID,
			ErrorMessage: attempt.ErrorMessage,
		})
	}

	respondJSON(w, ctx, http.StatusOK, LeadHistoryResponse{
		ID:               lead.ID,
		ReceivedAt:       lead.ReceivedAt.Format(time.RFC3339),
		Status:           string(lead.Status),
		ItemID:           lead.ItemID,
		RejectionReason:  lead.RejectionReason,
		RejectionDetail:  lead.RejectionDetail,
		RawPayload:       lead.RawPayload,
		ItemsPage:        lead.ItemsPage,
		LeadName:         lead.LeadName,
		PhoneNumber:      lead.PhoneNumber,
		MessagePayload:   lead.MessagePayload,
		DeliveryAttempts: attemptSummaries,
	})
}

// HandleRecipientStatus handles GET /stats/status/{recipient_id}
func (h *StatsHandler) HandleRecipientStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		respondError(w, ctx, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	recipientID := mux.Vars(r)["recipient_id"]
	if recipientID == "" {
		respondError(w, ctx, http.StatusBadRequest, "invalid recipient ID")
		return
	}
	ctx = context.WithValue(ctx, logger.RecipientIDKey, recipientID)

	record, err := h.statusRepo.GetStatus(ctx, recipientID)
	if errors.Is(err, models.ErrStatusNotFound) {
		respondError(w, ctx, http.StatusNotFound, "status not found")
		return
	}
	if err != nil {
		logger.LogError(ctx, "Failed to get recipient status", err)
		respondError(w, ctx, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, ctx, http.StatusOK, RecipientStatusResponse{
		RecipientID: record.RecipientID,
		Status:      record.Recipient(),
		Rank:        record.Status.Rank(),
		Final:       record.Status.IsTerminal(),
		LeadID:      record.LeadID,
		UpdateCount: record.UpdateCount,
		UpdatedAt:   record.UpdatedAt.Format(time.RFC3339),
	})
}

// HandleStatusCounts handles GET /stats/status/counts
func (h *StatsHandler) HandleStatusCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		respondError(w, ctx, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	counts, err := h.statusRepo.GetStatusCounts(ctx)
	if err != nil {
		logger.LogError(ctx, "Failed to get status counts", err)
		respondError(w, ctx, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, ctx, http.StatusOK, counts)
}

// parseLimit reads the recent-leads limit, clamping it to maxRecentLimit
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultRecentLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(limit, maxRecentLimit), nil
}
