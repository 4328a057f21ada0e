package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// MessageStatus is the lifecycle state of an outbound message as reported by
// the messaging provider.
type MessageStatus int

const (
	// MessageStatusUnknown is the sentinel for anything the provider reports
	// that is not in the status table. It is the zero value.
	MessageStatusUnknown MessageStatus = iota
	MessageStatusPending
	MessageStatusSent
	MessageStatusDelivered
	MessageStatusRead
	MessageStatusResponded
	MessageStatusFailed
	MessageStatusUnsubscribed
	// MessageStatusUnavailable means the recipient cannot be reached on the
	// channel at all (e.g. the number is not registered with the provider).
	MessageStatusUnavailable
)

// MessageStatusSchemaVersion identifies the status table below. Bump it
// whenever a variant, wire string or rank changes.
const MessageStatusSchemaVersion = 2

type messageStatusEntry struct {
	wire string
	rank int
}

// messageStatusTable is the single source of truth for wire strings and
// ranks. Rank orders by progress, then severity: negative outcomes and the
// Unknown sentinel outrank routine progress states.
var messageStatusTable = [...]messageStatusEntry{
	MessageStatusPending:      {wire: "pending", rank: 0},
	MessageStatusSent:         {wire: "sent", rank: 1},
	MessageStatusDelivered:    {wire: "delivered", rank: 2},
	MessageStatusRead:         {wire: "read", rank: 3},
	MessageStatusResponded:    {wire: "responded", rank: 4},
	MessageStatusFailed:       {wire: "failed", rank: 5},
	MessageStatusUnknown:      {wire: "not sent", rank: 6},
	MessageStatusUnsubscribed: {wire: "unsubscribed", rank: 7},
	MessageStatusUnavailable:  {wire: "unavailable", rank: 8},
}

// StatusCount is the number of MessageStatus variants. It is the channel
// offset used when ordering MessageRecipient values.
const StatusCount = len(messageStatusTable)

var messageStatusByWire = make(map[string]MessageStatus, StatusCount)

func init() {
	if err := checkMessageStatusTable(); err != nil {
		panic(err)
	}
	for i, entry := range messageStatusTable {
		messageStatusByWire[entry.wire] = MessageStatus(i)
	}
}

// checkMessageStatusTable verifies that every variant has exactly one wire
// string and that ranks are a permutation of 0..StatusCount-1.
func checkMessageStatusTable() error {
	seenWire := make(map[string]MessageStatus, StatusCount)
	seenRank := make(map[int]MessageStatus, StatusCount)

	for i, entry := range messageStatusTable {
		status := MessageStatus(i)
		if entry.wire == "" {
			return fmt.Errorf("message status %d has no wire string", i)
		}
		if entry.wire != strings.ToLower(entry.wire) {
			return fmt.Errorf("message status %d wire string %q is not lowercase", i, entry.wire)
		}
		if other, ok := seenWire[entry.wire]; ok {
			return fmt.Errorf("message statuses %d and %d share wire string %q", other, status, entry.wire)
		}
		if entry.rank < 0 || entry.rank >= StatusCount {
			return fmt.Errorf("message status %q has out-of-range rank %d", entry.wire, entry.rank)
		}
		if other, ok := seenRank[entry.rank]; ok {
			return fmt.Errorf("message statuses %q and %q share rank %d",
				messageStatusTable[other].wire, entry.wire, entry.rank)
		}
		seenWire[entry.wire] = status
		seenRank[entry.rank] = status
	}

	return nil
}

// AllMessageStatuses returns every variant in declaration order.
func AllMessageStatuses() []MessageStatus {
	statuses := make([]MessageStatus, StatusCount)
	for i := range statuses {
		statuses[i] = MessageStatus(i)
	}
	return statuses
}

// ParseMessageStatus looks up a wire string case-insensitively. Anything
// unmapped yields MessageStatusUnknown; it never fails.
func ParseMessageStatus(wire string) MessageStatus {
	if status, ok := messageStatusByWire[strings.ToLower(strings.TrimSpace(wire))]; ok {
		return status
	}
	return MessageStatusUnknown
}

// valid reports whether s is one of the declared variants.
func (s MessageStatus) valid() bool {
	return s >= 0 && int(s) < StatusCount
}

func (s MessageStatus) entry() messageStatusEntry {
	if !s.valid() {
		return messageStatusTable[MessageStatusUnknown]
	}
	return messageStatusTable[s]
}

// Rank returns the ordering rank of the status. Values outside the declared
// set rank as MessageStatusUnknown.
func (s MessageStatus) Rank() int {
	return s.entry().rank
}

// String returns the canonical wire string.
func (s MessageStatus) String() string {
	return s.entry().wire
}

// IsTerminal reports whether no further progress is expected for the message.
func (s MessageStatus) IsTerminal() bool {
	switch s {
	case MessageStatusResponded, MessageStatusFailed, MessageStatusUnsubscribed, MessageStatusUnavailable:
		return true
	default:
		return false
	}
}

// MarshalJSON encodes the status as its wire string.
func (s MessageStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a wire string. Unmapped strings decode to
// MessageStatusUnknown; only non-string JSON is an error.
func (s *MessageStatus) UnmarshalJSON(data []byte) error {
	var wire string
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("message status must be a string: %w", err)
	}
	*s = ParseMessageStatus(wire)
	return nil
}

// Value implements the driver.Valuer interface
func (s MessageStatus) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements the sql.Scanner interface
func (s *MessageStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = MessageStatusUnknown
	case string:
		*s = ParseMessageStatus(v)
	case []byte:
		*s = ParseMessageStatus(string(v))
	default:
		return fmt.Errorf("failed to scan message status: %v", value)
	}
	return nil
}
