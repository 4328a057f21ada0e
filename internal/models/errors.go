package models

import (
	"errors"
	"fmt"
)

var (
	// ErrSharedAdapter matches every error of the shared adapter taxonomy
	ErrSharedAdapter = errors.New("shared adapter error")

	// ErrInvalidPhoneNumber matches *InvalidPhoneNumberError
	ErrInvalidPhoneNumber = errors.New("invalid phone number")

	// ErrDataFieldNotFound matches *DataFieldNotFoundError
	ErrDataFieldNotFound = errors.New("data field not found")

	// ErrInvalidTransition is returned when a lead status change breaks the pipeline state machine
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InvalidPhoneNumberError is returned when a candidate phone number is not a
// 10 or 11 digit US/Canada number. Input is the value as received.
type InvalidPhoneNumberError struct {
	Input string
}

func (e *InvalidPhoneNumberError) Error() string {
	return fmt.Sprintf("invalid phone number: %s", e.Input)
}

// Is matches ErrInvalidPhoneNumber and ErrSharedAdapter
func (e *InvalidPhoneNumberError) Is(target error) bool {
	return target == ErrInvalidPhoneNumber || target == ErrSharedAdapter
}

// NewInvalidPhoneNumberError creates a new InvalidPhoneNumberError
func NewInvalidPhoneNumberError(input string) *InvalidPhoneNumberError {
	return &InvalidPhoneNumberError{Input: input}
}

// DataFieldNotFoundError is returned when a required field is absent from an
// upstream payload or has the wrong shape. Field names the extraction step
// that failed.
type DataFieldNotFoundError struct {
	Field string
}

func (e *DataFieldNotFoundError) Error() string {
	return fmt.Sprintf("data field not found: %s", e.Field)
}

// Is matches ErrDataFieldNotFound and ErrSharedAdapter
func (e *DataFieldNotFoundError) Is(target error) bool {
	return target == ErrDataFieldNotFound || target == ErrSharedAdapter
}

// NewDataFieldNotFoundError creates a new DataFieldNotFoundError
func NewDataFieldNotFoundError(field string) *DataFieldNotFoundError {
	return &DataFieldNotFoundError{Field: field}
}

// RejectionFromError maps a shared adapter error to the rejection reason and
// detail stored on the lead. ok is false for errors outside the taxonomy.
func RejectionFromError(err error) (reason RejectionReason, detail string, ok bool) {
	var phoneErr *InvalidPhoneNumberError
	if errors.As(err, &phoneErr) {
		return RejectionReasonInvalidPhoneNumber, phoneErr.Input, true
	}

	var fieldErr *DataFieldNotFoundError
	if errors.As(err, &fieldErr) {
		return RejectionReasonMissingField, fieldErr.Field, true
	}

	return "", "", false
}

// UpstreamError represents a failed call to an upstream HTTP service (the
// record store or the messaging provider)
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
	Retriable  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	retriableStr := "non-retriable"
	if e.Retriable {
		retriableStr = "retriable"
	}

	if e.StatusCode > 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s error (%s): HTTP %d - %s (caused by: %v)",
				e.Service, retriableStr, e.StatusCode, e.Message, e.Err)
		}
		return fmt.Sprintf("%s error (%s): HTTP %d - %s",
			e.Service, retriableStr, e.StatusCode, e.Message)
	}

	if e.Err != nil {
		return fmt.Sprintf("%s error (%s): %s (caused by: %v)",
			e.Service, retriableStr, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Service, retriableStr, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsRetriable returns true if the upstream error should trigger a retry
func (e *UpstreamError) IsRetriable() bool {
	return e.Retriable
}

// NewUpstreamError creates a new UpstreamError
func NewUpstreamError(service string, statusCode int, message string, retriable bool, err error) *UpstreamError {
	return &UpstreamError{
		Service:    service,
		StatusCode: statusCode,
		Message:    message,
		Retriable:  retriable,
		Err:        err,
	}
}
