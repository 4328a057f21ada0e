package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StatusUpdate is a status callback about one message recipient.
type StatusUpdate struct {
	RecipientID string           `json:"recipient_id"`
	Status      MessageRecipient `json:"status"`
}

// NewStatusUpdate builds a StatusUpdate; the recipient id must be non-empty
func NewStatusUpdate(recipientID string, status MessageRecipient) (StatusUpdate, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return StatusUpdate{}, NewDataFieldNotFoundError("recipient_id")
	}
	return StatusUpdate{RecipientID: recipientID, Status: status}, nil
}

// Supersedes reports whether u should replace other when both describe the
// same recipient.
func (u StatusUpdate) Supersedes(other StatusUpdate) bool {
	return Compare(u.Status, other.Status) > 0
}

// DedupKey identifies a callback for duplicate suppression
func (u StatusUpdate) DedupKey() string {
	return fmt.Sprintf("%s|%s", u.RecipientID, u.Status)
}

// ParseStatusUpdate decodes a status callback body
func ParseStatusUpdate(data []byte) (StatusUpdate, error) {
	var raw struct {
		RecipientID string            `json:"recipient_id"`
		Status      *MessageRecipient `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return StatusUpdate{}, fmt.Errorf("failed to decode status update: %w", err)
	}
	if raw.Status == nil {
		return StatusUpdate{}, NewDataFieldNotFoundError("status")
	}
	return NewStatusUpdate(raw.RecipientID, *raw.Status)
}

// MessageStatusRecord is the persisted, reconciled status of a recipient
type MessageStatusRecord struct {
	RecipientID string           `json:"recipient_id" db:"recipient_id"`
	Channel     RecipientChannel `json:"-" db:"channel"`
	Status      MessageStatus    `json:"-" db:"status"`
	LeadID      *int64           `json:"lead_id,omitempty" db:"lead_id"`
	UpdateCount int              `json:"update_count" db:"update_count"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// Recipient returns the stored channel/status pair
func (m *MessageStatusRecord) Recipient() MessageRecipient {
	return MessageRecipient{Channel: m.Channel, Status: m.Status}
}

// ErrStatusNotFound is returned when no status exists for a recipient
var ErrStatusNotFound = errors.New("message status not found")
