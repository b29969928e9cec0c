package models

import "time"

// ScheduledMessageStatus represents valid scheduled message statuses
type ScheduledMessageStatus string

const (
	ScheduledStatusPending   ScheduledMessageStatus = "pending"
	ScheduledStatusQueued    ScheduledMessageStatus = "queued"
	ScheduledStatusSending   ScheduledMessageStatus = "sending"
	ScheduledStatusSent      ScheduledMessageStatus = "sent"
	ScheduledStatusDelivered ScheduledMessageStatus = "delivered"
	ScheduledStatusFailed    ScheduledMessageStatus = "failed"
	ScheduledStatusCancelled ScheduledMessageStatus = "cancelled"
)

// ScheduledMessage is a future-dated drip send waiting in storage. The
// pre-queue scheduler owns the pending->queued transition; after that the
// broker holds the work until a dispatcher writes the outcome back.
type ScheduledMessage struct {
	ID                int64                  `json:"id" db:"id"`
	UserID            int64                  `json:"user_id" db:"user_id"`
	WorkspaceID       int64                  `json:"workspace_id" db:"workspace_id"`
	ContactID         int64                  `json:"contact_id" db:"contact_id"`
	DripID            int64                  `json:"drip_id" db:"drip_id"`
	CampaignID        int64                  `json:"campaign_id" db:"campaign_id"`
	DripContactID     int64                  `json:"drip_contact_id" db:"drip_contact_id"`
	FromNumber        *string                `json:"from_number,omitempty" db:"from_number"`
	ToNumber          string                 `json:"to_number" db:"to_number"`
	Body              string                 `json:"body" db:"body"`
	MediaURL          *string                `json:"media_url,omitempty" db:"media_url"`
	ScheduledAt       time.Time              `json:"scheduled_at" db:"scheduled_at"`
	Status            ScheduledMessageStatus `json:"status" db:"status"`
	RetryCount        int                    `json:"retry_count" db:"retry_count"`
	QueuedAt          *time.Time             `json:"queued_at,omitempty" db:"queued_at"`
	SentAt            *time.Time             `json:"sent_at,omitempty" db:"sent_at"`
	ErrorMessage      *string                `json:"error_message,omitempty" db:"error_message"`
	MessageID         *int64                 `json:"message_id,omitempty" db:"message_id"`
	ProviderMessageID *string                `json:"provider_message_id,omitempty" db:"provider_message_id"`
	CreatedAt         time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether no further transition is allowed from the
// current status.
func (m *ScheduledMessage) IsTerminal() bool {
	switch m.Status {
	case ScheduledStatusDelivered, ScheduledStatusFailed, ScheduledStatusCancelled:
		return true
	}
	return false
}

// IsDue reports whether the message falls inside the pre-queue lead window.
func (m *ScheduledMessage) IsDue(now time.Time, window time.Duration) bool {
	return m.Status == ScheduledStatusPending && !m.ScheduledAt.After(now.Add(window))
}
