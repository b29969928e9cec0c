package models

import (
	"time"

	"github.com/lib/pq"
)

// Webhook event tags
const (
	EventOutboundMessage  = "outbound_message"
	EventMessageInbound   = "message.inbound"
	EventMessageDelivered = "message.delivered"
	EventMessageFailed    = "message.failed"
	EventContactOptOut    = "contact.optout"
	EventContactOptIn     = "contact.optin"
)

// WebhookStatusActive marks a subscription eligible for fan-out.
const WebhookStatusActive = "active"

// Webhook is a user-registered subscription to platform events.
type Webhook struct {
	ID              int64          `json:"id" db:"id"`
	UserID          int64          `json:"user_id" db:"user_id"`
	WorkspaceID     int64          `json:"workspace_id" db:"workspace_id"`
	URL             string         `json:"url" db:"url"`
	Secret          string         `json:"secret" db:"secret"`
	Events          pq.StringArray `json:"events" db:"events"`
	Status          string         `json:"status" db:"status"`
	FailureCount    int            `json:"failure_count" db:"failure_count"`
	LastTriggeredAt *time.Time     `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// Subscribes reports whether the webhook wants the given event tag.
func (w *Webhook) Subscribes(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// WebhookDeliveryStatus tracks a single delivery attempt outcome
type WebhookDeliveryStatus string

const (
	DeliveryStatusPending WebhookDeliveryStatus = "pending"
	DeliveryStatusSuccess WebhookDeliveryStatus = "success"
	DeliveryStatusFailed  WebhookDeliveryStatus = "failed"
)

// WebhookDelivery is an immutable attempt log for one webhook POST.
type WebhookDelivery struct {
	ID             int64                 `json:"id" db:"id"`
	WebhookID      int64                 `json:"webhook_id" db:"webhook_id"`
	EventID        string                `json:"event_id" db:"event_id"`
	EventType      string                `json:"event_type" db:"event_type"`
	Payload        []byte                `json:"payload" db:"payload"`
	Status         WebhookDeliveryStatus `json:"status" db:"status"`
	ResponseStatus *int                  `json:"response_status,omitempty" db:"response_status"`
	ResponseBody   *string               `json:"response_body,omitempty" db:"response_body"`
	ErrorMessage   *string               `json:"error_message,omitempty" db:"error_message"`
	DurationMS     *int64                `json:"duration_ms,omitempty" db:"duration_ms"`
	AttemptedAt    *time.Time            `json:"attempted_at,omitempty" db:"attempted_at"`
	CreatedAt      time.Time             `json:"created_at" db:"created_at"`
}
