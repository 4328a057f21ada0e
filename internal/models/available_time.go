package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AvailableTime is a coarse time-of-day preference for an appointment
type AvailableTime int

const (
	AvailableTimeUnknown AvailableTime = iota
	AvailableTimeMorning
	AvailableTimeAfternoon
	AvailableTimeEvening
)

// ParseAvailableTime converts a preference case-insensitively. Unrecognized
// input maps to AvailableTimeUnknown.
func ParseAvailableTime(s string) AvailableTime {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "morning":
		return AvailableTimeMorning
	case "afternoon":
		return AvailableTimeAfternoon
	case "evening":
		return AvailableTimeEvening
	default:
		return AvailableTimeUnknown
	}
}

func (t AvailableTime) String() string {
	switch t {
	case AvailableTimeMorning:
		return "morning"
	case AvailableTimeAfternoon:
		return "afternoon"
	case AvailableTimeEvening:
		return "evening"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the preference as its lowercase name
func (t AvailableTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a preference; unknown names decode to AvailableTimeUnknown
func (t *AvailableTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("available time must be a string: %w", err)
	}
	*t = ParseAvailableTime(s)
	return nil
}

// AppointmentRequest is a completed appointment request coming back from a
// lead conversation. It is validated before it reaches this layer.
type AppointmentRequest struct {
	Name                  *string         `json:"name,omitempty"`
	PhoneNumber           string          `json:"phone_number"`
	Availabilities        []AvailableTime `json:"availabilities"`
	AdditionalInformation string          `json:"additional_information"`
	RequestedDate         string          `json:"requested_date"`
}
