package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/checkfox/go_lead_adapter/internal/database"
	"github.com/checkfox/go_lead_adapter/internal/models"
)

// MergeFunc decides which status to keep when incoming arrives for a
// recipient already holding current, reporting whether incoming won
type MergeFunc func(current, incoming models.MessageRecipient) (models.MessageRecipient, bool)

// StatusReconciliation is the outcome of recording one status callback
type StatusReconciliation struct {
	Record   *models.MessageStatusRecord
	Previous *models.MessageRecipient
	Replaced bool
}

// MessageStatusRepository persists the reconciled status of each recipient
type MessageStatusRepository interface {
	// RecordStatusUpdate merges update into the stored status for its
	// recipient. leadID, when set, links the recipient to a lead if the
	// update wins the merge or no lead is linked yet.
	RecordStatusUpdate(ctx context.Context, update models.StatusUpdate, leadID *int64) (*StatusReconciliation, error)

	// GetStatus returns the stored status for a recipient
	GetStatus(ctx context.Context, recipientID string) (*models.MessageStatusRecord, error)

	// GetStatusCounts returns recipient counts keyed by "channel:status"
	GetStatusCounts(ctx context.Context) (map[string]int, error)
}

type messageStatusRepository struct {
	db    *sql.DB
	merge MergeFunc
}

// NewMessageStatusRepository creates a MessageStatusRepository that resolves
// concurrent reports with merge
func NewMessageStatusRepository(db *sql.DB, merge MergeFunc) MessageStatusRepository {
	return &messageStatusRepository{
		db:    db,
		merge: merge,
	}
}

const messageStatusColumns = `recipient_id, channel, status, lead_id, update_count, created_at, updated_at`

func scanMessageStatus(row rowScanner) (*models.MessageStatusRecord, error) {
	record := &models.MessageStatusRecord{}
	var leadID sql.NullInt64
	err := row.Scan(
		&record.RecipientID,
		&record.Channel,
		&record.Status,
		&leadID,
		&record.UpdateCount,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if leadID.Valid {
		record.LeadID = &leadID.Int64
	}
	return record, nil
}

// RecordStatusUpdate inserts the first report for a recipient, or locks the
// existing row and keeps whichever status the merge function picks. Every
// report increments update_count, including ones that lose the merge. A
// losing report never moves the row to another lead.
func (r *messageStatusRepository) RecordStatusUpdate(ctx context.Context, update models.StatusUpdate, leadID *int64) (*StatusReconciliation, error) {
	var result *StatusReconciliation

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		now := time.Now()

		insert := `
			INSERT INTO message_status (recipient_id, channel, status, lead_id, update_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 1, $5, $5)
			ON CONFLICT (recipient_id) DO NOTHING
			RETURNING ` + messageStatusColumns

		record, err := scanMessageStatus(tx.QueryRowContext(ctx, insert,
			update.RecipientID, update.Status.Channel, update.Status.Status, leadID, now))
		if err == nil {
			result = &StatusReconciliation{Record: record, Replaced: true}
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to insert message status: %w", err)
		}

		selectForUpdate := `SELECT ` + messageStatusColumns + `
			FROM message_status
			WHERE recipient_id = $1
			FOR UPDATE`

		current, err := scanMessageStatus(tx.QueryRowContext(ctx, selectForUpdate, update.RecipientID))
		if err != nil {
			return fmt.Errorf("failed to lock message status: %w", err)
		}

		previous := current.Recipient()
		kept, replaced := r.merge(previous, update.Status)

		// the link follows the winning report; a losing one only fills a missing link
		updateQuery := `
			UPDATE message_status
			SET channel = $2, status = $3,
				lead_id = CASE WHEN $6::boolean THEN COALESCE($4, lead_id) ELSE COALESCE(lead_id, $4) END,
				update_count = update_count + 1, updated_at = $5
			WHERE recipient_id = $1
			RETURNING ` + messageStatusColumns

		record, err = scanMessageStatus(tx.QueryRowContext(ctx, updateQuery,
			update.RecipientID, kept.Channel, kept.Status, leadID, now, replaced))
		if err != nil {
			return fmt.Errorf("failed to update message status: %w", err)
		}

		result = &StatusReconciliation{Record: record, Previous: &previous, Replaced: replaced}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetStatus returns the stored status for a recipient
func (r *messageStatusRepository) GetStatus(ctx context.Context, recipientID string) (*models.MessageStatusRecord, error) {
	query := `SELECT ` + messageStatusColumns + ` FROM message_status WHERE recipient_id = $1`

	record, err := scanMessageStatus(r.db.QueryRowContext(ctx, query, recipientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrStatusNotFound, recipientID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message status: %w", err)
	}

	return record, nil
}

// GetStatusCounts returns recipient counts keyed by "channel:status"
func (r *messageStatusRepository) GetStatusCounts(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT channel, status, COUNT(*)
		FROM message_status
		GROUP BY channel, status
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query message status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var channel models.RecipientChannel
		var status models.MessageStatus
		var count int
		if err := rows.Scan(&channel, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[models.MessageRecipient{Channel: channel, Status: status}.String()] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}
