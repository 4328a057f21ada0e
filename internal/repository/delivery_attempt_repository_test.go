package repository

import (
	"context"
	"testing"

	"github.com/checkfox/go_lead_adapter/internal/models"
)

func createReadyLead(t *testing.T, repo LeadRepository) *models.InboundLead {
	t.Helper()
	lead := newReceivedLead("555")
	lead.Status = models.LeadStatusReady
	if err := repo.CreateLead(context.Background(), lead); err != nil {
		t.Fatalf("Failed to create lead: %v", err)
	}
	return lead
}

func TestDeliveryAttemptRepository_CreateAndList(t *testing.T) {
	db := setupTestDB(t)
	leadRepo := NewLeadRepository(db)
	attemptRepo := NewDeliveryAttemptRepository(db)
	ctx := context.Background()

	lead := createReadyLead(t, leadRepo)

	failed := models.NewDeliveryAttempt(lead.ID, 1)
	statusCode := 503
	failed.MarkFailure(&statusCode, "messaging error (retriable): HTTP 503 - unavailable")
	if err := attemptRepo.CreateDeliveryAttempt(ctx, failed); err != nil {
		t.Fatalf("Failed to create delivery attempt: %v", err)
	}

	succeeded := models.NewDeliveryAttempt(lead.ID, 2)
	succeeded.MarkSuccess(200, `{"messages":[{"id":"wamid.1"}]}`, "wamid.1")
	if err := attemptRepo.CreateDeliveryAttempt(ctx, succeeded); err != nil {
		t.Fatalf("Failed to create delivery attempt: %v", err)
	}
	if succeeded.ID == 0 {
		t.Error("Expected delivery attempt ID to be set after creation")
	}

	attempts, err := attemptRepo.GetDeliveryAttemptsByLeadID(ctx, lead.ID)
	if err != nil {
		t.Fatalf("Failed to list delivery attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].AttemptNo != 1 || attempts[0].Success {
		t.Errorf("Unexpected first attempt: %+v", attempts[0])
	}

	latest, err := attemptRepo.GetLatestDeliveryAttempt(ctx, lead.ID)
	if err != nil {
		t.Fatalf("Failed to get latest attempt: %v", err)
	}
	if latest.MessageID == nil || *latest.MessageID != "wamid.1" {
		t.Errorf("Expected message id wamid.1, got %v", latest.MessageID)
	}

	count, err := attemptRepo.CountDeliveryAttempts(ctx, lead.ID)
	if err != nil {
		t.Fatalf("Failed to count attempts: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 attempts, got %d", count)
	}
}

func TestDeliveryAttemptRepository_CreateDeliveryAttemptTx(t *testing.T) {
	db := setupTestDB(t)
	leadRepo := NewLeadRepository(db)
	attemptRepo := NewDeliveryAttemptRepository(db)
	ctx := context.Background()

	lead := createReadyLead(t, leadRepo)

	tx, err := leadRepo.BeginTx(ctx)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}

	attempt := models.NewDeliveryAttempt(lead.ID, 1)
	attempt.MarkSuccess(200, "{}", "")
	if err := attemptRepo.CreateDeliveryAttemptTx(ctx, tx, attempt); err != nil {
		tx.Rollback()
		t.Fatalf("Failed to create attempt in transaction: %v", err)
	}
	if err := leadRepo.UpdateLeadStatusTx(ctx, tx, lead.ID, models.LeadStatusDelivered); err != nil {
		tx.Rollback()
		t.Fatalf("Failed to update lead in transaction: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	retrieved, err := leadRepo.GetLeadByID(ctx, lead.ID)
	if err != nil {
		t.Fatalf("Failed to get lead: %v", err)
	}
	if retrieved.Status != models.LeadStatusDelivered {
		t.Errorf("Expected DELIVERED, got %s", retrieved.Status)
	}

	if _, err := attemptRepo.GetLatestDeliveryAttempt(ctx, 999999); err == nil {
		t.Error("Expected error for lead without attempts")
	}
}
