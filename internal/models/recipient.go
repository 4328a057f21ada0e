package models

import (
	"cmp"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// RecipientChannel identifies which observer a status report describes.
type RecipientChannel int

const (
	// ChannelClient is the person the message was sent to
	ChannelClient RecipientChannel = iota
	// ChannelHost is the business side of the conversation
	ChannelHost
)

// String returns the wire tag of the channel
func (c RecipientChannel) String() string {
	switch c {
	case ChannelHost:
		return "host"
	case ChannelClient:
		return "client"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// ParseRecipientChannel parses a wire tag case-insensitively
func ParseRecipientChannel(tag string) (RecipientChannel, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "host":
		return ChannelHost, nil
	case "client":
		return ChannelClient, nil
	default:
		return ChannelClient, fmt.Errorf("unknown recipient channel %q", tag)
	}
}

// Value implements the driver.Valuer interface
func (c RecipientChannel) Value() (driver.Value, error) {
	if c != ChannelHost && c != ChannelClient {
		return nil, fmt.Errorf("invalid recipient channel: %d", int(c))
	}
	return c.String(), nil
}

// Scan implements the sql.Scanner interface
func (c *RecipientChannel) Scan(value interface{}) error {
	var tag string
	switch v := value.(type) {
	case string:
		tag = v
	case []byte:
		tag = string(v)
	default:
		return fmt.Errorf("failed to scan recipient channel: %v", value)
	}
	channel, err := ParseRecipientChannel(tag)
	if err != nil {
		return err
	}
	*c = channel
	return nil
}

// MessageRecipient tags a MessageStatus with the channel it describes.
//
// Recipients are totally ordered: every Host report outranks every Client
// report, and within a channel the higher-ranked status wins.
type MessageRecipient struct {
	Channel RecipientChannel
	Status  MessageStatus
}

// HostRecipient wraps a status reported on the host channel
func HostRecipient(status MessageStatus) MessageRecipient {
	return MessageRecipient{Channel: ChannelHost, Status: status}
}

// ClientRecipient wraps a status reported on the client channel
func ClientRecipient(status MessageStatus) MessageRecipient {
	return MessageRecipient{Channel: ChannelClient, Status: status}
}

// orderIndex is the combined index: status rank, shifted by StatusCount for
// the host channel.
func (r MessageRecipient) orderIndex() int {
	index := r.Status.Rank()
	if r.Channel == ChannelHost {
		index += StatusCount
	}
	return index
}

// Compare returns -1 if a orders before b, 0 if they are equivalent and +1 if
// a orders after b.
func Compare(a, b MessageRecipient) int {
	return cmp.Compare(a.orderIndex(), b.orderIndex())
}

// Less reports whether r orders strictly before other
func (r MessageRecipient) Less(other MessageRecipient) bool {
	return Compare(r, other) < 0
}

// MaxRecipient returns the greatest recipient by Compare. The first of several
// equivalent maxima is returned. ok is false when recipients is empty.
func MaxRecipient(recipients ...MessageRecipient) (max MessageRecipient, ok bool) {
	if len(recipients) == 0 {
		return MessageRecipient{}, false
	}
	max = recipients[0]
	for _, r := range recipients[1:] {
		if Compare(r, max) > 0 {
			max = r
		}
	}
	return max, true
}

// String renders the recipient as "host:sent"
func (r MessageRecipient) String() string {
	return r.Channel.String() + ":" + r.Status.String()
}

// MarshalJSON encodes the recipient as a tagged value: {"host": "sent"}
func (r MessageRecipient) MarshalJSON() ([]byte, error) {
	if r.Channel != ChannelHost && r.Channel != ChannelClient {
		return nil, fmt.Errorf("cannot marshal recipient with %s", r.Channel)
	}
	return json.Marshal(map[string]MessageStatus{r.Channel.String(): r.Status})
}

// UnmarshalJSON decodes a tagged value with exactly one channel key
func (r *MessageRecipient) UnmarshalJSON(data []byte) error {
	var tagged map[string]MessageStatus
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("message recipient must be an object: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("message recipient must have exactly one channel key, got %d", len(tagged))
	}

	for tag, status := range tagged {
		channel, err := ParseRecipientChannel(tag)
		if err != nil {
			return err
		}
		r.Channel = channel
		r.Status = status
	}
	return nil
}
