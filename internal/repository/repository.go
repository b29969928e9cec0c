package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sengine/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrInsufficientCredits is returned by Deduct when the balance cannot cover
// the requested amount.
var ErrInsufficientCredits = errors.New("insufficient credits")

// ScheduledMessageRepository defines pre-queue work item data access
type ScheduledMessageRepository interface {
	GetByID(ctx context.Context, id int64) (*models.ScheduledMessage, error)
	// GetDue returns pending rows with scheduled_at <= before, oldest first.
	GetDue(ctx context.Context, before time.Time, limit int) ([]*models.ScheduledMessage, error)
	// MarkQueued flips pending rows to queued and stamps queued_at. Rows no
	// longer pending (e.g. cancelled in parallel) are left untouched.
	MarkQueued(ctx context.Context, ids []int64, queuedAt time.Time) (int64, error)
	MarkSending(ctx context.Context, id int64) error
	MarkSent(ctx context.Context, id int64, messageID int64, providerMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	// SetProviderMessageID stamps gateway acceptance in one statement, before
	// any other post-send bookkeeping.
	SetProviderMessageID(ctx context.Context, id int64, sid string) error
}

// MessageRepository defines permanent message record data access
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	GetByBRef(ctx context.Context, bRef string) (*models.Message, error)
	GetByProviderMessageID(ctx context.Context, sid string) (*models.Message, error)
	// SetProviderMessageID records gateway acceptance in a single statement.
	SetProviderMessageID(ctx context.Context, id int64, sid string) error
	UpdateDeliveryStatus(ctx context.Context, id int64, status int, deliveryStatus string) error
}

// ContactRepository defines contact data access
type ContactRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Contact, error)
	FindByPhone(ctx context.Context, userID int64, phone string) (*models.Contact, error)
	Create(ctx context.Context, contact *models.Contact) error
	UpdateLastMessage(ctx context.Context, id int64, body string, at time.Time) error
	SetOptedOut(ctx context.Context, id int64, optedOut bool) error
	ReopenChat(ctx context.Context, id int64) error
	UnreadCount(ctx context.Context, userID int64) (int, error)
}

// UserRepository defines user and sending-number data access
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// GetActiveNumber returns any active, non-deleted sending number.
	GetActiveNumber(ctx context.Context, userID int64) (*models.UserNumber, error)
	// FindNumberByDigits fuzzy-matches a number by its digit string.
	FindNumberByDigits(ctx context.Context, userID int64, digits string) (*models.UserNumber, error)
	// FindNumberOwner resolves which tenant owns a receiving number,
	// fuzzy-matched across all active numbers.
	FindNumberOwner(ctx context.Context, digits string) (*models.UserNumber, error)
}

// DripContactRepository defines per-enrollment tracking data access
type DripContactRepository interface {
	GetByID(ctx context.Context, id int64) (*models.DripContact, error)
	MarkSent(ctx context.Context, id int64, messageID int64, bRef string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	// MarkSkipped records an enrollment intentionally not sent (opt-out).
	MarkSkipped(ctx context.Context, id int64, reason string) error
}

// CreditRepository defines the transactional credit ledger
type CreditRepository interface {
	GetBalance(ctx context.Context, userID int64) (int64, error)
	// Deduct debits inside a transaction holding the row lock. Returns
	// ErrInsufficientCredits when the balance cannot cover the amount.
	Deduct(ctx context.Context, userID, amount int64, description, refType string, refID int64) (*models.CreditTransaction, error)
	// Refund credits back; never fails on balance.
	Refund(ctx context.Context, userID, amount int64, description, refType string, refID int64) (*models.CreditTransaction, error)
}

// WebhookRepository defines webhook subscription and delivery data access
type WebhookRepository interface {
	ListActiveForEvent(ctx context.Context, userID, workspaceID int64, event string) ([]*models.Webhook, error)
	GetByID(ctx context.Context, id int64) (*models.Webhook, error)
	CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error
	GetDeliveryByID(ctx context.Context, id int64) (*models.WebhookDelivery, error)
	RecordDeliveryAttempt(ctx context.Context, id int64, status models.WebhookDeliveryStatus, responseStatus *int, responseBody, errorMessage *string, durationMS int64, attemptedAt time.Time) error
	MarkTriggered(ctx context.Context, webhookID int64, at time.Time) error
	IncrementFailureCount(ctx context.Context, webhookID int64) error
}

// OptOutRepository defines the per-user phone deny-list
type OptOutRepository interface {
	Add(ctx context.Context, userID int64, phone string) error
	Remove(ctx context.Context, userID int64, phone string) error
	Exists(ctx context.Context, userID int64, phone string) (bool, error)
}

// DB is the statement-level surface shared by *sql.DB and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
