package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sengine/internal/db"
	"sengine/internal/models"
)

type contactRepository struct {
	pools *db.Pools
}

// NewContactRepository creates a contact repository
func NewContactRepository(pools *db.Pools) ContactRepository {
	return &contactRepository{pools: pools}
}

const contactColumns = `
	id, user_id, workspace_id, phone, first_name, last_name, email, opted_out,
	is_block, last_message, open_chat, archive, deleted_at, created_at, updated_at`

func scanContact(row interface{ Scan(...interface{}) error }) (*models.Contact, error) {
	c := &models.Contact{}
	err := row.Scan(
		&c.ID, &c.UserID, &c.WorkspaceID, &c.Phone, &c.FirstName, &c.LastName,
		&c.Email, &c.OptedOut, &c.IsBlocked, &c.LastMessage, &c.OpenChat,
		&c.Archived, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByID retrieves a contact by ID, including soft-deleted rows so callers
// can distinguish "deleted" from "missing".
func (r *contactRepository) GetByID(ctx context.Context, id int64) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`

	c, err := scanContact(r.pools.Reader.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return c, nil
}

// FindByPhone finds a live contact by normalized phone for a user.
func (r *contactRepository) FindByPhone(ctx context.Context, userID int64, phone string) (*models.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1 AND phone = $2 AND deleted_at IS NULL
		ORDER BY id ASC
		LIMIT 1
	`

	c, err := scanContact(r.pools.Reader.QueryRowContext(ctx, query, userID, phone))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find contact by phone: %w", err)
	}
	return c, nil
}

// Create inserts a new contact
func (r *contactRepository) Create(ctx context.Context, contact *models.Contact) error {
	query := `
		INSERT INTO contacts (user_id, workspace_id, phone, first_name, last_name, email, opted_out, is_block, open_chat, archive)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.pools.Writer.QueryRowContext(
		ctx,
		query,
		contact.UserID,
		contact.WorkspaceID,
		contact.Phone,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.OptedOut,
		contact.IsBlocked,
		contact.OpenChat,
		contact.Archived,
	).Scan(&contact.ID, &contact.CreatedAt, &contact.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// UpdateLastMessage stores the latest message preview for the chat list.
func (r *contactRepository) UpdateLastMessage(ctx context.Context, id int64, body string, at time.Time) error {
	query := `
		UPDATE contacts
		SET last_message = $1, updated_at = $2
		WHERE id = $3
	`

	_, err := r.pools.Writer.ExecContext(ctx, query, body, at, id)
	if err != nil {
		return fmt.Errorf("failed to update last message: %w", err)
	}
	return nil
}

// SetOptedOut toggles the contact's opt-out flag.
func (r *contactRepository) SetOptedOut(ctx context.Context, id int64, optedOut bool) error {
	query := `
		UPDATE contacts
		SET opted_out = $1, updated_at = NOW()
		WHERE id = $2
	`

	_, err := r.pools.Writer.ExecContext(ctx, query, optedOut, id)
	if err != nil {
		return fmt.Errorf("failed to set opted_out: %w", err)
	}
	return nil
}

// ReopenChat unarchives the thread and marks it open.
func (r *contactRepository) ReopenChat(ctx context.Context, id int64) error {
	query := `
		UPDATE contacts
		SET open_chat = TRUE, archive = FALSE, updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.pools.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reopen chat: %w", err)
	}
	return nil
}

// UnreadCount counts unread inbound messages across a user's contacts.
func (r *contactRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE user_id = $1 AND direction = $2 AND is_read = FALSE
	`

	var count int
	err := r.pools.Reader.QueryRowContext(ctx, query, userID, models.DirectionInbound).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
