package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}

	*j = result
	return nil
}

// LeadDetails is a validated lead ready for messaging: a name and a US/Canada
// phone number in 11-digit form with a leading "1".
type LeadDetails struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

// NewLeadDetails validates and builds a LeadDetails. The phone number must
// already be normalized.
func NewLeadDetails(name, phoneNumber string) (*LeadDetails, error) {
	if !isCanonicalPhoneNumber(phoneNumber) {
		return nil, NewInvalidPhoneNumberError(phoneNumber)
	}
	if strings.TrimSpace(name) == "" {
		return nil, NewDataFieldNotFoundError("name")
	}

	return &LeadDetails{
		Name:        name,
		PhoneNumber: phoneNumber,
	}, nil
}

// isCanonicalPhoneNumber checks for exactly 11 ASCII digits starting with "1"
func isCanonicalPhoneNumber(phoneNumber string) bool {
	if len(phoneNumber) != 11 || phoneNumber[0] != '1' {
		return false
	}
	for i := 0; i < len(phoneNumber); i++ {
		if phoneNumber[i] < '0' || phoneNumber[i] > '9' {
			return false
		}
	}
	return true
}

// InboundLead represents an item notification received via webhook and the
// lead extracted from it
type InboundLead struct {
	ID              int64      `json:"id" db:"id"`
	ReceivedAt      time.Time  `json:"received_at" db:"received_at"`
	RawPayload      JSONB      `json:"raw_payload" db:"raw_payload"`
	SourceHeaders   JSONB      `json:"source_headers,omitempty" db:"source_headers"`
	ItemID          *string    `json:"item_id,omitempty" db:"item_id"`
	Status          LeadStatus `json:"status" db:"status"`
	RejectionReason *string    `json:"rejection_reason,omitempty" db:"rejection_reason"`
	RejectionDetail *string    `json:"rejection_detail,omitempty" db:"rejection_detail"`
	ItemsPage       JSONB      `json:"items_page,omitempty" db:"items_page"`
	LeadName        *string    `json:"lead_name,omitempty" db:"lead_name"`
	PhoneNumber     *string    `json:"phone_number,omitempty" db:"phone_number"`
	MessagePayload  JSONB      `json:"message_payload,omitempty" db:"message_payload"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Details returns the extracted lead, or nil if extraction has not succeeded
func (l *InboundLead) Details() *LeadDetails {
	if l.LeadName == nil || l.PhoneNumber == nil {
		return nil
	}
	return &LeadDetails{Name: *l.LeadName, PhoneNumber: *l.PhoneNumber}
}

// CanTransitionTo checks if the lead can transition from its current status to the target status
func (l *InboundLead) CanTransitionTo(target LeadStatus) bool {
	// Terminal states cannot transition
	if l.Status.IsTerminal() {
		return false
	}

	switch l.Status {
	case LeadStatusReceived:
		// RECEIVED can transition to REJECTED or READY, or fail while fetching the items page
		return target == LeadStatusRejected || target == LeadStatusReady ||
			target == LeadStatusFailed || target == LeadStatusPermanentlyFailed

	case LeadStatusReady:
		// READY can transition to DELIVERED, FAILED, or PERMANENTLY_FAILED
		return target == LeadStatusDelivered || target == LeadStatusFailed || target == LeadStatusPermanentlyFailed

	case LeadStatusFailed:
		// FAILED can be retried: a failed fetch may still be rejected or become READY,
		// a failed send may still be delivered, and another retriable failure keeps it FAILED
		return target == LeadStatusDelivered || target == LeadStatusPermanentlyFailed ||
			target == LeadStatusRejected || target == LeadStatusReady || target == LeadStatusFailed

	default:
		return false
	}
}

// TransitionTo attempts to transition the lead to a new status
// Returns an error wrapping ErrInvalidTransition if the transition is not allowed
func (l *InboundLead) TransitionTo(target LeadStatus) error {
	if !l.CanTransitionTo(target) {
		return fmt.Errorf("%w from %s to %s", ErrInvalidTransition, l.Status, target)
	}

	l.Status = target
	l.UpdatedAt = time.Now()
	return nil
}

// MarkRejected marks the lead as rejected with the given reason and detail
func (l *InboundLead) MarkRejected(reason RejectionReason, detail string) error {
	if err := l.TransitionTo(LeadStatusRejected); err != nil {
		return err
	}

	reasonStr := reason.String()
	l.RejectionReason = &reasonStr
	l.RejectionDetail = &detail
	return nil
}

// MarkExtracted stores the extracted lead details and marks the lead as ready
func (l *InboundLead) MarkExtracted(details *LeadDetails) error {
	if err := l.TransitionTo(LeadStatusReady); err != nil {
		return err
	}

	name := details.Name
	phone := details.PhoneNumber
	l.LeadName = &name
	l.PhoneNumber = &phone
	return nil
}

// MarkDelivered marks the outreach message as accepted by the provider
func (l *InboundLead) MarkDelivered() error {
	return l.TransitionTo(LeadStatusDelivered)
}

// MarkFailed marks the lead as failed (retriable)
func (l *InboundLead) MarkFailed() error {
	return l.TransitionTo(LeadStatusFailed)
}

// MarkPermanentlyFailed marks the lead as permanently failed
func (l *InboundLead) MarkPermanentlyFailed() error {
	return l.TransitionTo(LeadStatusPermanentlyFailed)
}

// DeliveryAttempt represents a single attempt to send the outreach message for a lead
type DeliveryAttempt struct {
	ID             int64     `json:"id" db:"id"`
	LeadID         int64     `json:"lead_id" db:"lead_id"`
	AttemptNo      int       `json:"attempt_no" db:"attempt_no"`
	RequestedAt    time.Time `json:"requested_at" db:"requested_at"`
	ResponseStatus *int      `json:"response_status,omitempty" db:"response_status"`
	ResponseBody   *string   `json:"response_body,omitempty" db:"response_body"`
	MessageID      *string   `json:"message_id,omitempty" db:"message_id"`
	ErrorMessage   *string   `json:"error_message,omitempty" db:"error_message"`
	Success        bool      `json:"success" db:"success"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// NewDeliveryAttempt creates a new delivery attempt for a lead
func NewDeliveryAttempt(leadID int64, attemptNo int) *DeliveryAttempt {
	now := time.Now()
	return &DeliveryAttempt{
		LeadID:      leadID,
		AttemptNo:   attemptNo,
		RequestedAt: now,
		Success:     false,
		CreatedAt:   now,
	}
}

// MarkSuccess marks the delivery attempt as successful
func (d *DeliveryAttempt) MarkSuccess(statusCode int, responseBody, messageID string) {
	d.Success = true
	d.ResponseStatus = &statusCode
	d.ResponseBody = &responseBody
	if messageID != "" {
		d.MessageID = &messageID
	}
}

// MarkFailure marks the delivery attempt as failed
func (d *DeliveryAttempt) MarkFailure(statusCode *int, errorMessage string) {
	d.Success = false
	d.ResponseStatus = statusCode
	d.ErrorMessage = &errorMessage
}
