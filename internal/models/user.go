package models

import "time"

// MessagingStatusActive is the only user state allowed to send.
const MessagingStatusActive = "active"

// User holds the tenant fields the worker needs: messaging gate and optional
// per-tenant gateway credentials.
type User struct {
	ID                int64   `json:"id" db:"id"`
	WorkspaceID       int64   `json:"workspace_id" db:"workspace_id"`
	ProviderAccountID *string `json:"provider_account_id,omitempty" db:"provider_account_id"`
	ProviderAuthToken *string `json:"provider_auth_token,omitempty" db:"provider_auth_token"`
	MessagingStatus   string  `json:"messaging_status" db:"messaging_status"`
}

// CanSend reports whether outbound messaging is enabled for the user.
func (u *User) CanSend() bool {
	return u.MessagingStatus == MessagingStatusActive
}

// HasProviderCredentials reports whether the tenant supplied its own gateway
// account, which takes precedence over the process defaults.
func (u *User) HasProviderCredentials() bool {
	return u.ProviderAccountID != nil && *u.ProviderAccountID != "" &&
		u.ProviderAuthToken != nil && *u.ProviderAuthToken != ""
}

// UserNumberStatusActive marks a provisioned number usable for sending.
const UserNumberStatusActive = "active"

// UserNumber is a provisioned sending number owned by a user.
type UserNumber struct {
	ID        int64      `json:"id" db:"id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	Phone     string     `json:"phone" db:"phone"`
	Status    string     `json:"status" db:"status"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
