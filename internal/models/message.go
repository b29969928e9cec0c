package models

import "time"

// Coarse numeric message statuses. These track the provider lifecycle from
// the reconciler's mapping table.
const (
	MessageStatusQueued      = 0
	MessageStatusSent        = 1
	MessageStatusDelivered   = 2
	MessageStatusFailed      = 3
	MessageStatusUndelivered = 4
)

// MessageDirection distinguishes outbound sends from inbound receipts
type MessageDirection string

const (
	DirectionOutbound MessageDirection = "outbound"
	DirectionInbound  MessageDirection = "inbound"
)

// Message type codes
const (
	MessageTypeSMS = 1
	MessageTypeMMS = 2
)

// Message is the permanent record of an actual transmission. Rows are
// append-then-update and never deleted. ProviderMessageID is non-null iff the
// send reached the gateway at least once; it is the idempotency key for
// "already sent".
type Message struct {
	ID                int64            `json:"id" db:"id"`
	UID               string           `json:"uid" db:"uid"`
	BRef              *string          `json:"b_ref,omitempty" db:"b_ref"`
	ProviderMessageID *string          `json:"provider_message_id,omitempty" db:"provider_message_id"`
	FromNumber        string           `json:"from_number" db:"from_number"`
	ToNumber          string           `json:"to_number" db:"to_number"`
	Body              string           `json:"body" db:"body"`
	MediaURL          *string          `json:"media_url,omitempty" db:"media_url"`
	Status            int              `json:"status" db:"status"`
	DeliveryStatus    *string          `json:"delivery_status,omitempty" db:"delivery_status"`
	Direction         MessageDirection `json:"direction" db:"direction"`
	IsDrip            bool             `json:"is_drip" db:"is_drip"`
	DripID            *int64           `json:"drip_id,omitempty" db:"drip_id"`
	UserID            int64            `json:"user_id" db:"user_id"`
	WorkspaceID       int64            `json:"workspace_id" db:"workspace_id"`
	ContactID         int64            `json:"contact_id" db:"contact_id"`
	MessageType       int              `json:"message_type" db:"message_type"`
	IsRead            bool             `json:"is_read" db:"is_read"`
	IsCharged         bool             `json:"is_charged" db:"is_charged"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// WasSent reports whether the message reached the gateway at least once.
func (m *Message) WasSent() bool {
	return m.ProviderMessageID != nil && *m.ProviderMessageID != ""
}
