package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"sengine/internal/db"
	"sengine/internal/models"
)

type scheduledMessageRepository struct {
	pools *db.Pools
}

// NewScheduledMessageRepository creates a scheduled message repository
func NewScheduledMessageRepository(pools *db.Pools) ScheduledMessageRepository {
	return &scheduledMessageRepository{pools: pools}
}

const scheduledMessageColumns = `
	id, user_id, workspace_id, contact_id, drip_id, campaign_id, drip_contact_id,
	from_number, to_number, body, media_url, scheduled_at, status, retry_count,
	queued_at, sent_at, error_message, message_id, provider_message_id,
	created_at, updated_at`

func scanScheduledMessage(row interface{ Scan(...interface{}) error }) (*models.ScheduledMessage, error) {
	m := &models.ScheduledMessage{}
	err := row.Scan(
		&m.ID, &m.UserID, &m.WorkspaceID, &m.ContactID, &m.DripID, &m.CampaignID,
		&m.DripContactID, &m.FromNumber, &m.ToNumber, &m.Body, &m.MediaURL,
		&m.ScheduledAt, &m.Status, &m.RetryCount, &m.QueuedAt, &m.SentAt,
		&m.ErrorMessage, &m.MessageID, &m.ProviderMessageID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetByID retrieves a scheduled message by ID
func (r *scheduledMessageRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledMessage, error) {
	query := `SELECT ` + scheduledMessageColumns + ` FROM scheduled_messages WHERE id = $1`

	m, err := scanScheduledMessage(r.pools.Reader.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled message: %w", err)
	}
	return m, nil
}

// GetDue returns pending rows inside the lead window, oldest first. A row
// whose scheduled_at equals the boundary is eligible.
func (r *scheduledMessageRepository) GetDue(ctx context.Context, before time.Time, limit int) ([]*models.ScheduledMessage, error) {
	query := `
		SELECT ` + scheduledMessageColumns + `
		FROM scheduled_messages
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		LIMIT $3
	`

	rows, err := r.pools.Reader.QueryContext(ctx, query, models.ScheduledStatusPending, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due messages: %w", err)
	}
	defer rows.Close()

	var due []*models.ScheduledMessage
	for rows.Next() {
		m, err := scanScheduledMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled message: %w", err)
		}
		due = append(due, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating due messages: %w", err)
	}

	return due, nil
}

// MarkQueued atomically flips pending rows to queued. The status gate keeps a
// row cancelled in parallel from being clobbered.
func (r *scheduledMessageRepository) MarkQueued(ctx context.Context, ids []int64, queuedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `
		UPDATE scheduled_messages
		SET status = $1, queued_at = $2, updated_at = NOW()
		WHERE id = ANY($3) AND status = $4
	`

	result, err := r.pools.Writer.ExecContext(ctx, query,
		models.ScheduledStatusQueued, queuedAt, pq.Array(ids), models.ScheduledStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages queued: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// MarkSending moves a queued row into the sending state.
func (r *scheduledMessageRepository) MarkSending(ctx context.Context, id int64) error {
	query := `
		UPDATE scheduled_messages
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	_, err := r.pools.Writer.ExecContext(ctx, query,
		models.ScheduledStatusSending, id, models.ScheduledStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to mark message sending: %w", err)
	}
	return nil
}

// MarkSent records a successful send with its message row and provider id.
func (r *scheduledMessageRepository) MarkSent(ctx context.Context, id int64, messageID int64, providerMessageID string, sentAt time.Time) error {
	query := `
		UPDATE scheduled_messages
		SET status = $1, sent_at = $2, message_id = $3, provider_message_id = $4,
			error_message = NULL, updated_at = NOW()
		WHERE id = $5
	`

	result, err := r.pools.Writer.ExecContext(ctx, query,
		models.ScheduledStatusSent, sentAt, messageID, providerMessageID, id)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
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

// SetProviderMessageID records gateway acceptance as a single statement so a
// crash immediately after the gateway call still leaves the idempotency key
// behind.
func (r *scheduledMessageRepository) SetProviderMessageID(ctx context.Context, id int64, sid string) error {
	query := `
		UPDATE scheduled_messages
		SET provider_message_id = $1, updated_at = NOW()
		WHERE id = $2
	`

	_, err := r.pools.Writer.ExecContext(ctx, query, sid, id)
	if err != nil {
		return fmt.Errorf("failed to set provider message id: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure with its reason.
func (r *scheduledMessageRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE scheduled_messages
		SET status = $1, error_message = $2, retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $3
	`

	_, err := r.pools.Writer.ExecContext(ctx, query, models.ScheduledStatusFailed, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}
	return nil
}
