package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/checkfox/go_lead_adapter/internal/models"
)

// ErrLeadNotFound is returned when no inbound_lead row matches
var ErrLeadNotFound = errors.New("lead not found")

// LeadRepository defines the interface for lead data persistence operations
type LeadRepository interface {
	// CreateLead creates a new inbound lead record
	CreateLead(ctx context.Context, lead *models.InboundLead) error

	// GetLeadByID retrieves a lead by its ID
	GetLeadByID(ctx context.Context, id int64) (*models.InboundLead, error)

	// FindLatestLeadByPhone returns the most recent lead extracted with phone
	FindLatestLeadByPhone(ctx context.Context, phoneNumber string) (*models.InboundLead, error)

	// UpdateLeadStatus updates the status of a lead atomically
	UpdateLeadStatus(ctx context.Context, id int64, status models.LeadStatus) error

	// UpdateLeadItemsPage stores the items page fetched for a lead
	UpdateLeadItemsPage(ctx context.Context, id int64, itemsPage models.JSONB) error

	// UpdateLeadExtraction stores the extracted lead and its outreach
	// message and moves the lead to READY
	UpdateLeadExtraction(ctx context.Context, id int64, details *models.LeadDetails, messagePayload models.JSONB) error

	// UpdateLeadRejection marks a lead as rejected with a reason and detail
	UpdateLeadRejection(ctx context.Context, id int64, reason models.RejectionReason, detail string) error

	// BeginTx starts a new database transaction
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// UpdateLeadStatusTx updates the status of a lead within a transaction
	UpdateLeadStatusTx(ctx context.Context, tx *sql.Tx, id int64, status models.LeadStatus) error

	// GetLeadCountsByStatus returns counts of leads grouped by status
	GetLeadCountsByStatus(ctx context.Context) (map[string]int, error)

	// GetRecentLeads returns the most recent leads ordered by received_at
	GetRecentLeads(ctx context.Context, limit int) ([]*models.InboundLead, error)
}

// leadRepository is the concrete implementation of LeadRepository
type leadRepository struct {
	db *sql.DB
}

// NewLeadRepository creates a new LeadRepository instance
func NewLeadRepository(db *sql.DB) LeadRepository {
	return &leadRepository{
		db: db,
	}
}

const leadColumns = `
	id, received_at, raw_payload, source_headers, item_id, status,
	rejection_reason, rejection_detail, items_page, lead_name,
	phone_number, message_payload, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(row rowScanner) (*models.InboundLead, error) {
	lead := &models.InboundLead{}
	err := row.Scan(
		&lead.ID,
		&lead.ReceivedAt,
		&lead.RawPayload,
		&lead.SourceHeaders,
		&lead.ItemID,
		&lead.Status,
		&lead.RejectionReason,
		&lead.RejectionDetail,
		&lead.ItemsPage,
		&lead.LeadName,
		&lead.PhoneNumber,
		&lead.MessagePayload,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// CreateLead creates a new inbound lead record
func (r *leadRepository) CreateLead(ctx context.Context, lead *models.InboundLead) error {
	query := `
		INSERT INTO inbound_lead (
			received_at, raw_payload, source_headers, item_id, status,
			items_page, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now()
	if lead.ReceivedAt.IsZero() {
		lead.ReceivedAt = now
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	if lead.UpdatedAt.IsZero() {
		lead.UpdatedAt = now
	}
	if lead.Status == "" {
		lead.Status = models.LeadStatusReceived
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		lead.ReceivedAt,
		lead.RawPayload,
		lead.SourceHeaders,
		lead.ItemID,
		lead.Status,
		lead.ItemsPage,
		lead.CreatedAt,
		lead.UpdatedAt,
	).Scan(&lead.ID)
	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}

	return nil
}

// GetLeadByID retrieves a lead by its ID
func (r *leadRepository) GetLeadByID(ctx context.Context, id int64) (*models.InboundLead, error) {
	query := `SELECT ` + leadColumns + ` FROM inbound_lead WHERE id = $1`

	lead, err := scanLead(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrLeadNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	return lead, nil
}

// FindLatestLeadByPhone returns the most recent lead extracted with phoneNumber
func (r *leadRepository) FindLatestLeadByPhone(ctx context.Context, phoneNumber string) (*models.InboundLead, error) {
	query := `SELECT ` + leadColumns + `
		FROM inbound_lead
		WHERE phone_number = $1
		ORDER BY received_at DESC
		LIMIT 1`

	lead, err := scanLead(r.db.QueryRowContext(ctx, query, phoneNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: phone %s", ErrLeadNotFound, phoneNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find lead by phone: %w", err)
	}

	return lead, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// execUpdate runs a single-row UPDATE and maps zero affected rows to ErrLeadNotFound
func execUpdate(ctx context.Context, exec execer, id int64, what, query string, args ...interface{}) error {
	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrLeadNotFound, id)
	}

	return nil
}

// UpdateLeadStatus updates the status of a lead atomically
func (r *leadRepository) UpdateLeadStatus(ctx context.Context, id int64, status models.LeadStatus) error {
	query := `
		UPDATE inbound_lead
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	return execUpdate(ctx, r.db, id, "lead status", query, status, time.Now(), id)
}

// UpdateLeadItemsPage stores the items page fetched for a lead
func (r *leadRepository) UpdateLeadItemsPage(ctx context.Context, id int64, itemsPage models.JSONB) error {
	query := `
		UPDATE inbound_lead
		SET items_page = $1, updated_at = $2
		WHERE id = $3
	`
	return execUpdate(ctx, r.db, id, "lead items page", query, itemsPage, time.Now(), id)
}

// UpdateLeadExtraction stores the extracted lead and moves it to READY
func (r *leadRepository) UpdateLeadExtraction(ctx context.Context, id int64, details *models.LeadDetails, messagePayload models.JSONB) error {
	if details == nil {
		return fmt.Errorf("lead details are required")
	}

	query := `
		UPDATE inbound_lead
		SET status = $1, lead_name = $2, phone_number = $3, message_payload = $4,
			rejection_reason = NULL, rejection_detail = NULL, updated_at = $5
		WHERE id = $6
	`
	return execUpdate(ctx, r.db, id, "lead extraction", query,
		models.LeadStatusReady, details.Name, details.PhoneNumber, messagePayload, time.Now(), id)
}

// UpdateLeadRejection marks a lead as rejected with a reason and detail
func (r *leadRepository) UpdateLeadRejection(ctx context.Context, id int64, reason models.RejectionReason, detail string) error {
	query := `
		UPDATE inbound_lead
		SET status = $1, rejection_reason = $2, rejection_detail = $3, updated_at = $4
		WHERE id = $5
	`
	return execUpdate(ctx, r.db, id, "lead rejection", query,
		models.LeadStatusRejected, reason.String(), detail, time.Now(), id)
}

// BeginTx starts a new database transaction
func (r *leadRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// UpdateLeadStatusTx updates the status of a lead within a transaction
func (r *leadRepository) UpdateLeadStatusTx(ctx context.Context, tx *sql.Tx, id int64, status models.LeadStatus) error {
	query := `
		UPDATE inbound_lead
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	return execUpdate(ctx, tx, id, "lead status in transaction", query, status, time.Now(), id)
}

// GetLeadCountsByStatus returns counts of leads grouped by status
func (r *leadRepository) GetLeadCountsByStatus(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT status, COUNT(*) as count
		FROM inbound_lead
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query lead counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}

// GetRecentLeads returns the most recent leads ordered by received_at
func (r *leadRepository) GetRecentLeads(ctx context.Context, limit int) ([]*models.InboundLead, error) {
	query := `SELECT ` + leadColumns + `
		FROM inbound_lead
		ORDER BY received_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent leads: %w", err)
	}
	defer rows.Close()

	leads := make([]*models.InboundLead, 0, limit)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, lead)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return leads, nil
}
