package models

import "time"

// Contact represents a messaging recipient. Created by the upstream API or by
// the inbound ingestor when a message arrives from an unknown number.
type Contact struct {
	ID          int64      `json:"id" db:"id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	WorkspaceID int64      `json:"workspace_id" db:"workspace_id"`
	Phone       string     `json:"phone" db:"phone"`
	FirstName   *string    `json:"first_name,omitempty" db:"first_name"`
	LastName    *string    `json:"last_name,omitempty" db:"last_name"`
	Email       *string    `json:"email,omitempty" db:"email"`
	OptedOut    bool       `json:"opted_out" db:"opted_out"`
	IsBlocked   bool       `json:"is_block" db:"is_block"`
	LastMessage *string    `json:"last_message,omitempty" db:"last_message"`
	OpenChat    bool       `json:"open_chat" db:"open_chat"`
	Archived    bool       `json:"archive" db:"archive"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsReachable reports whether the contact may receive outbound messages.
func (c *Contact) IsReachable() bool {
	return c.DeletedAt == nil && !c.OptedOut && !c.IsBlocked
}

// FullName joins first and last name, tolerating either being absent.
func (c *Contact) FullName() string {
	first, last := "", ""
	if c.FirstName != nil {
		first = *c.FirstName
	}
	if c.LastName != nil {
		last = *c.LastName
	}
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	default:
		return last
	}
}
