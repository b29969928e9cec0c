package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sengine/internal/db"
	"sengine/internal/models"
)

type messageRepository struct {
	pools *db.Pools
}

// NewMessageRepository creates a message repository
func NewMessageRepository(pools *db.Pools) MessageRepository {
	return &messageRepository{pools: pools}
}

const messageColumns = `
	id, uid, b_ref, provider_message_id, from_number, to_number, body, media_url,
	status, delivery_status, direction, is_drip, drip_id, user_id, workspace_id,
	contact_id, message_type, is_read, is_charged, created_at, updated_at`

func scanMessage(row interface{ Scan(...interface{}) error }) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(
		&m.ID, &m.UID, &m.BRef, &m.ProviderMessageID, &m.FromNumber, &m.ToNumber,
		&m.Body, &m.MediaURL, &m.Status, &m.DeliveryStatus, &m.Direction, &m.IsDrip,
		&m.DripID, &m.UserID, &m.WorkspaceID, &m.ContactID, &m.MessageType,
		&m.IsRead, &m.IsCharged, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Create inserts a new message row and fills in generated fields.
func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (
			uid, b_ref, provider_message_id, from_number, to_number, body, media_url,
			status, delivery_status, direction, is_drip, drip_id, user_id, workspace_id,
			contact_id, message_type, is_read, is_charged
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at
	`

	err := r.pools.Writer.QueryRowContext(
		ctx,
		query,
		message.UID,
		message.BRef,
		message.ProviderMessageID,
		message.FromNumber,
		message.ToNumber,
		message.Body,
		message.MediaURL,
		message.Status,
		message.DeliveryStatus,
		message.Direction,
		message.IsDrip,
		message.DripID,
		message.UserID,
		message.WorkspaceID,
		message.ContactID,
		message.MessageType,
		message.IsRead,
		message.IsCharged,
	).Scan(&message.ID, &message.CreatedAt, &message.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetByID retrieves a message by ID
func (r *messageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(r.pools.Reader.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

// GetByBRef retrieves a message by its tracking token.
func (r *messageRepository) GetByBRef(ctx context.Context, bRef string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE b_ref = $1`

	m, err := scanMessage(r.pools.Reader.QueryRowContext(ctx, query, bRef))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by b_ref: %w", err)
	}
	return m, nil
}

// GetByProviderMessageID retrieves a message by the gateway-assigned id.
func (r *messageRepository) GetByProviderMessageID(ctx context.Context, sid string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE provider_message_id = $1`

	m, err := scanMessage(r.pools.Reader.QueryRowContext(ctx, query, sid))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by provider id: %w", err)
	}
	return m, nil
}

// SetProviderMessageID records gateway acceptance. Kept to one statement so
// the idempotency key lands before any other post-send bookkeeping.
func (r *messageRepository) SetProviderMessageID(ctx context.Context, id int64, sid string) error {
	query := `
		UPDATE messages
		SET provider_message_id = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.pools.Writer.ExecContext(ctx, query, sid, id)
	if err != nil {
		return fmt.Errorf("failed to set provider message id: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDeliveryStatus updates the coarse and textual delivery state.
func (r *messageRepository) UpdateDeliveryStatus(ctx context.Context, id int64, status int, deliveryStatus string) error {
	query := `
		UPDATE messages
		SET status = $1, delivery_status = $2, updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.pools.Writer.ExecContext(ctx, query, status, deliveryStatus, id)
	if err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
