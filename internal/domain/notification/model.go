package notification

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Channel represents a notification delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "inapp"
)

// validChannels is the set of all recognized channels.
var validChannels = map[Channel]bool{
	ChannelEmail: true,
	ChannelSMS:   true,
	ChannelInApp: true,
}

// IsValid checks whether a channel is recognized.
func (c Channel) IsValid() bool {
	return validChannels[c]
}

func (c Channel) String() string {
	return string(c)
}

// UnmarshalJSON normalizes the channel on intake: values are accepted
// case-insensitively on the wire and stored lowercase.
func (c *Channel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshaling channel: %w", err)
	}
	*c = Channel(strings.ToLower(s))
	return nil
}

// Status represents the delivery status of a notification in the ledger.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusDelivered Status = "delivered"
	StatusRetrying  Status = "retrying"
	StatusFailed    Status = "failed"
)

// Request is the inbound queue message, immutable once received.
// RetryCount is the number of prior failed attempts, supplied by the
// queue integration on each delivery.
type Request struct {
	ID          string         `json:"id"`
	Template    string         `json:"template"`
	Channel     Channel        `json:"channel"`
	RetryCount  int            `json:"retryCount"`
	Recipient   string         `json:"recipient"`
	Payload     map[string]any `json:"payload"`
	RequestedAt time.Time      `json:"requestedAt"`
}

// Record is a persisted ledger row for one notification.
type Record struct {
	ID             string         `json:"id"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Template       string         `json:"template"`
	Channel        string         `json:"channel"`
	Recipient      string         `json:"recipient"`
	Payload        map[string]any `json:"payload,omitempty"`
	Status         Status         `json:"status"`
	RetryCount     int            `json:"retry_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
}

// SendRequest is the API request payload for submitting a notification.
type SendRequest struct {
	Template       string         `json:"template" binding:"required"`
	Channel        Channel        `json:"channel" binding:"required"`
	Recipient      string         `json:"recipient" binding:"required"`
	Payload        map[string]any `json:"payload"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// SendResponse is the API response payload after a notification is enqueued.
type SendResponse struct {
	ID             string `json:"id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Channel        string `json:"channel"`
	Status         string `json:"status"`
}

// ListFilter defines pagination and filtering options for listing ledger records.
type ListFilter struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
	Recipient string `form:"recipient"`
	Channel   string `form:"channel"`
}

// ListResponse wraps a paginated list of ledger records.
type ListResponse struct {
	Notifications []*Record `json:"notifications"`
	Total         int       `json:"total"`
	Page          int       `json:"page"`
	PageSize      int       `json:"page_size"`
}

// PayloadString converts a payload value to its canonical string form for
// template substitution. Payload maps come from JSON, so the variants are
// string, float64, bool and nil; nil maps to the empty string.
func PayloadString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
