package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sengine/internal/db"
	"sengine/internal/models"
)

type dripContactRepository struct {
	pools *db.Pools
}

// NewDripContactRepository creates a drip contact repository
func NewDripContactRepository(pools *db.Pools) DripContactRepository {
	return &dripContactRepository{pools: pools}
}

// GetByID retrieves a drip contact by ID
func (r *dripContactRepository) GetByID(ctx context.Context, id int64) (*models.DripContact, error) {
	query := `
		SELECT id, drip_id, contact_id, status, sent_at, message_id, b_ref, error_message, created_at, updated_at
		FROM drip_contacts
		WHERE id = $1
	`

	d := &models.DripContact{}
	err := r.pools.Reader.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.DripID, &d.ContactID, &d.Status, &d.SentAt, &d.MessageID,
		&d.BRef, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get drip contact: %w", err)
	}
	return d, nil
}

// MarkSent records a successful send on the enrollment row.
func (r *dripContactRepository) MarkSent(ctx context.Context, id int64, messageID int64, bRef string, sentAt time.Time) error {
	query := `
		UPDATE drip_contacts
		SET status = $1, sent_at = $2, message_id = $3, b_ref = $4, error_message = NULL, updated_at = NOW()
		WHERE id = $5
	`

	_, err := r.pools.Writer.ExecContext(ctx, query, models.DripContactSent, sentAt, messageID, bRef, id)
	if err != nil {
		return fmt.Errorf("failed to mark drip contact sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed send on the enrollment row.
func (r *dripContactRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE drip_contacts
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`

	_, err := r.pools.Writer.ExecContext(ctx, query, models.DripContactFailed, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark drip contact failed: %w", err)
	}
	return nil
}

// MarkSkipped records an enrollment intentionally not sent.
func (r *dripContactRepository) MarkSkipped(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE drip_contacts
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`

	_, err := r.pools.Writer.ExecContext(ctx, query, models.DripContactSkipped, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark drip contact skipped: %w", err)
	}
	return nil
}
