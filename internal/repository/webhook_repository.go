package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sengine/internal/db"
	"sengine/internal/models"
)

type webhookRepository struct {
	pools *db.Pools
}

// NewWebhookRepository creates a webhook repository
func NewWebhookRepository(pools *db.Pools) WebhookRepository {
	return &webhookRepository{pools: pools}
}

const webhookColumns = `
	id, user_id, workspace_id, url, secret, events, status, failure_count,
	last_triggered_at, created_at, updated_at`

func scanWebhook(row interface{ Scan(...interface{}) error }) (*models.Webhook, error) {
	w := &models.Webhook{}
	err := row.Scan(
		&w.ID, &w.UserID, &w.WorkspaceID, &w.URL, &w.Secret, &w.Events,
		&w.Status, &w.FailureCount, &w.LastTriggeredAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ListActiveForEvent returns active webhooks subscribed to the event tag.
func (r *webhookRepository) ListActiveForEvent(ctx context.Context, userID, workspaceID int64, event string) ([]*models.Webhook, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM webhooks
		WHERE user_id = $1 AND workspace_id = $2 AND status = $3 AND $4 = ANY(events)
		ORDER BY id ASC
	`

	rows, err := r.pools.Reader.QueryContext(ctx, query, userID, workspaceID, models.WebhookStatusActive, event)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		hooks = append(hooks, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating webhooks: %w", err)
	}
	return hooks, nil
}

// GetByID retrieves a webhook by ID
func (r *webhookRepository) GetByID(ctx context.Context, id int64) (*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1`

	w, err := scanWebhook(r.pools.Reader.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return w, nil
}

// CreateDelivery inserts a pending delivery row.
func (r *webhookRepository) CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (webhook_id, event_id, event_type, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.pools.Writer.QueryRowContext(
		ctx,
		query,
		delivery.WebhookID,
		delivery.EventID,
		delivery.EventType,
		delivery.Payload,
		delivery.Status,
	).Scan(&delivery.ID, &delivery.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}
	return nil
}

// GetDeliveryByID retrieves a delivery row by ID
func (r *webhookRepository) GetDeliveryByID(ctx context.Context, id int64) (*models.WebhookDelivery, error) {
	query := `
		SELECT id, webhook_id, event_id, event_type, payload, status,
			response_status, response_body, error_message, duration_ms, attempted_at, created_at
		FROM webhook_deliveries
		WHERE id = $1
	`

	d := &models.WebhookDelivery{}
	err := r.pools.Reader.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.WebhookID, &d.EventID, &d.EventType, &d.Payload, &d.Status,
		&d.ResponseStatus, &d.ResponseBody, &d.ErrorMessage, &d.DurationMS,
		&d.AttemptedAt, &d.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook delivery: %w", err)
	}
	return d, nil
}

// RecordDeliveryAttempt writes the outcome of one POST attempt.
func (r *webhookRepository) RecordDeliveryAttempt(ctx context.Context, id int64, status models.WebhookDeliveryStatus, responseStatus *int, responseBody, errorMessage *string, durationMS int64, attemptedAt time.Time) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, response_status = $2, response_body = $3,
			error_message = $4, duration_ms = $5, attempted_at = $6
		WHERE id = $7
	`

	result, err := r.pools.Writer.ExecContext(ctx, query,
		status, responseStatus, responseBody, errorMessage, durationMS, attemptedAt, id)
	if err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
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

// MarkTriggered resets the failure counter and stamps last_triggered_at.
func (r *webhookRepository) MarkTriggered(ctx context.Context, webhookID int64, at time.Time) error {
	query := `
		UPDATE webhooks
		SET failure_count = 0, last_triggered_at = $1, updated_at = NOW()
		WHERE id = $2
	`

	_, err := r.pools.Writer.ExecContext(ctx, query, at, webhookID)
	if err != nil {
		return fmt.Errorf("failed to mark webhook triggered: %w", err)
	}
	return nil
}

// IncrementFailureCount bumps the consecutive-failure counter.
func (r *webhookRepository) IncrementFailureCount(ctx context.Context, webhookID int64) error {
	query := `
		UPDATE webhooks
		SET failure_count = failure_count + 1, updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.pools.Writer.ExecContext(ctx, query, webhookID)
	if err != nil {
		return fmt.Errorf("failed to increment failure count: %w", err)
	}
	return nil
}
