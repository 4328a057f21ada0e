package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/checkfox/go_lead_adapter/internal/models"
	"github.com/checkfox/go_lead_adapter/internal/queue"
	"github.com/checkfox/go_lead_adapter/internal/repository"
)

// mockLeadRepo keeps leads in memory. createErr and countsErr force failures.
type mockLeadRepo struct {
	mu        sync.Mutex
	leads     []*models.InboundLead
	nextID    int64
	counts    map[string]int
	createErr error
	countsErr error
}

func (m *mockLeadRepo) CreateLead(ctx context.Context, lead *models.InboundLead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	lead.ID = m.nextID
	lead.CreatedAt = time.Now()
	lead.UpdatedAt = lead.CreatedAt
	m.leads = append(m.leads, lead)
	return nil
}

func (m *mockLeadRepo) GetLeadByID(ctx context.Context, id int64) (*models.InboundLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lead := range m.leads {
		if lead.ID == id {
			return lead, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", repository.ErrLeadNotFound, id)
}

func (m *mockLeadRepo) FindLatestLeadByPhone(ctx context.Context, phoneNumber string) (*models.InboundLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.leads) - 1; i >= 0; i-- {
		lead := m.leads[i]
		if lead.PhoneNumber != nil && *lead.PhoneNumber == phoneNumber {
			return lead, nil
		}
	}
	return nil, fmt.Errorf("%w: phone %s", repository.ErrLeadNotFound, phoneNumber)
}

func (m *mockLeadRepo) UpdateLeadStatus(ctx context.Context, id int64, status models.LeadStatus) error {
	return nil
}

func (m *mockLeadRepo) UpdateLeadItemsPage(ctx context.Context, id int64, itemsPage models.JSONB) error {
	return nil
}

func (m *mockLeadRepo) UpdateLeadExtraction(ctx context.Context, id int64, details *models.LeadDetails, messagePayload models.JSONB) error {
	return nil
}

func (m *mockLeadRepo) UpdateLeadRejection(ctx context.Context, id int64, reason models.RejectionReason, detail string) error {
	return nil
}

func (m *mockLeadRepo) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return nil, nil
}

func (m *mockLeadRepo) UpdateLeadStatusTx(ctx context.Context, tx *sql.Tx, id int64, status models.LeadStatus) error {
	return nil
}

func (m *mockLeadRepo) GetLeadCountsByStatus(ctx context.Context) (map[string]int, error) {
	if m.countsErr != nil {
		return nil, m.countsErr
	}
	return m.counts, nil
}

func (m *mockLeadRepo) GetRecentLeads(ctx context.Context, limit int) ([]*models.InboundLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.leads) <= limit {
		return m.leads, nil
	}
	return m.leads[:limit], nil
}

func (m *mockLeadRepo) created() []*models.InboundLead {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.InboundLead(nil), m.leads...)
}

type mockDeliveryAttemptRepo struct {
	attempts map[int64][]*models.DeliveryAttempt
}

func (m *mockDeliveryAttemptRepo) CreateDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	return nil
}

func (m *mockDeliveryAttemptRepo) CreateDeliveryAttemptTx(ctx context.Context, tx *sql.Tx, attempt *models.DeliveryAttempt) error {
	return nil
}

func (m *mockDeliveryAttemptRepo) GetDeliveryAttemptsByLeadID(ctx context.Context, leadID int64) ([]*models.DeliveryAttempt, error) {
	return m.attempts[leadID], nil
}

func (m *mockDeliveryAttemptRepo) GetLatestDeliveryAttempt(ctx context.Context, leadID int64) (*models.DeliveryAttempt, error) {
	attempts := m.attempts[leadID]
	if len(attempts) == 0 {
		return nil, nil
	}
	return attempts[len(attempts)-1], nil
}

func (m *mockDeliveryAttemptRepo) CountDeliveryAttempts(ctx context.Context, leadID int64) (int, error) {
	return len(m.attempts[leadID]), nil
}

// mockStatusRepo merges like the real repository: the greater recipient wins
type mockStatusRepo struct {
	mu        sync.Mutex
	records   map[string]*models.MessageStatusRecord
	recorded  []models.StatusUpdate
	recordErr error
	counts    map[string]int
}

func newMockStatusRepo() *mockStatusRepo {
	return &mockStatusRepo{records: make(map[string]*models.MessageStatusRecord)}
}

func (m *mockStatusRepo) RecordStatusUpdate(ctx context.Context, update models.StatusUpdate, leadID *int64) (*repository.StatusReconciliation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	m.recorded = append(m.recorded, update)

	now := time.Now()
	existing, ok := m.records[update.RecipientID]
	if !ok {
		record := &models.MessageStatusRecord{
			RecipientID: update.RecipientID,
			Channel:     update.Status.Channel,
			Status:      update.Status.Status,
			LeadID:      leadID,
			UpdateCount: 1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		m.records[update.RecipientID] = record
		return &repository.StatusReconciliation{Record: record, Replaced: true}, nil
	}

	previous := existing.Recipient()
	existing.UpdateCount++
	existing.UpdatedAt = now
	replaced := models.Compare(update.Status, previous) > 0
	if leadID != nil && (replaced || existing.LeadID == nil) {
		existing.LeadID = leadID
	}
	if replaced {
		existing.Channel = update.Status.Channel
		existing.Status = update.Status.Status
	}
	return &repository.StatusReconciliation{Record: existing, Previous: &previous, Replaced: replaced}, nil
}

func (m *mockStatusRepo) GetStatus(ctx context.Context, recipientID string) (*models.MessageStatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[recipientID]
	if !ok {
		return nil, models.ErrStatusNotFound
	}
	return record, nil
}

func (m *mockStatusRepo) GetStatusCounts(ctx context.Context) (map[string]int, error) {
	return m.counts, nil
}

// mockQueue records enqueued jobs. enqueueErr forces Enqueue to fail.
type mockQueue struct {
	mu         sync.Mutex
	jobs       []queue.Job
	enqueueErr error
	pending    int64
	healthErr  error
}

func (m *mockQueue) Enqueue(ctx context.Context, jobType string, payload map[string]interface{}) error {
	return m.EnqueueWithDelay(ctx, jobType, payload, 0)
}

func (m *mockQueue) EnqueueWithDelay(ctx context.Context, jobType string, payload map[string]interface{}, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.jobs = append(m.jobs, queue.Job{
		ID:        int64(len(m.jobs) + 1),
		Type:      jobType,
		Payload:   payload,
		CreatedAt: time.Now(),
		NextRunAt: time.Now().Add(delay),
	})
	return nil
}

func (m *mockQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	return nil, nil
}

func (m *mockQueue) Complete(ctx context.Context, jobID int64) error {
	return nil
}

func (m *mockQueue) Retry(ctx context.Context, jobID int64, delay time.Duration) error {
	return nil
}

func (m *mockQueue) Fail(ctx context.Context, jobID int64, errorMsg string) error {
	return nil
}

func (m *mockQueue) Pending(ctx context.Context) (int64, error) {
	return m.pending, nil
}

func (m *mockQueue) HealthCheck(ctx context.Context) error {
	return m.healthErr
}

func (m *mockQueue) Close() error {
	return nil
}

func (m *mockQueue) enqueued() []queue.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]queue.Job(nil), m.jobs...)
}

// mockDedup remembers keys in memory. err makes IsNew fail.
type mockDedup struct {
	mu        sync.Mutex
	seen      map[string]bool
	forgotten []string
	err       error
}

func newMockDedup() *mockDedup {
	return &mockDedup{seen: make(map[string]bool)}
}

func (m *mockDedup) IsNew(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *mockDedup) Forget(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	m.forgotten = append(m.forgotten, key)
	return nil
}

func stringPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}
