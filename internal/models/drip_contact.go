package models

import "time"

// DripContactStatus is the per-enrollment tracking status. Numeric codes are
// part of the upstream API contract and must not be renumbered.
type DripContactStatus int

const (
	DripContactPending   DripContactStatus = 0
	DripContactSent      DripContactStatus = 1
	DripContactDelivered DripContactStatus = 2
	DripContactFailed    DripContactStatus = 3
	DripContactSkipped   DripContactStatus = 4
	DripContactCancelled DripContactStatus = 5
)

// DripContact is the per-enrollment row owned by the upstream API. The
// dispatcher updates it after each send attempt.
type DripContact struct {
	ID           int64             `json:"id" db:"id"`
	DripID       int64             `json:"drip_id" db:"drip_id"`
	ContactID    int64             `json:"contact_id" db:"contact_id"`
	Status       DripContactStatus `json:"status" db:"status"`
	SentAt       *time.Time        `json:"sent_at,omitempty" db:"sent_at"`
	MessageID    *int64            `json:"message_id,omitempty" db:"message_id"`
	BRef         *string           `json:"b_ref,omitempty" db:"b_ref"`
	ErrorMessage *string           `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}
