package models

// LeadStatus represents the current state of a lead in the processing pipeline
type LeadStatus string

const (
	// LeadStatusReceived indicates the item notification has been accepted via webhook and queued for processing
	LeadStatusReceived LeadStatus = "RECEIVED"

	// LeadStatusRejected indicates lead details could not be extracted from the items page
	LeadStatusRejected LeadStatus = "REJECTED"

	// LeadStatusReady indicates lead details were extracted and the lead is ready for messaging
	LeadStatusReady LeadStatus = "READY"

	// LeadStatusDelivered indicates the outreach message was accepted by the messaging provider
	LeadStatusDelivered LeadStatus = "DELIVERED"

	// LeadStatusFailed indicates a send attempt failed but may be retried
	LeadStatusFailed LeadStatus = "FAILED"

	// LeadStatusPermanentlyFailed indicates maximum retry attempts exhausted or non-retriable error occurred
	LeadStatusPermanentlyFailed LeadStatus = "PERMANENTLY_FAILED"
)

// IsValid checks if the status is a valid LeadStatus value
func (s LeadStatus) IsValid() bool {
	switch s {
	case LeadStatusReceived, LeadStatusRejected, LeadStatusReady,
		LeadStatusDelivered, LeadStatusFailed, LeadStatusPermanentlyFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status represents a terminal state
func (s LeadStatus) IsTerminal() bool {
	return s == LeadStatusRejected || s == LeadStatusDelivered || s == LeadStatusPermanentlyFailed
}

// RejectionReason represents specific reasons why a lead was rejected during extraction
type RejectionReason string

const (
	// RejectionReasonInvalidPhoneNumber indicates the phone column did not hold a 10 or 11 digit number
	RejectionReasonInvalidPhoneNumber RejectionReason = "INVALID_PHONE_NUMBER"

	// RejectionReasonMissingField indicates a required field was absent from the items page
	RejectionReasonMissingField RejectionReason = "MISSING_FIELD"
)

// String returns the string representation of the rejection reason
func (r RejectionReason) String() string {
	return string(r)
}
