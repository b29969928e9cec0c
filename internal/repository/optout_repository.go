package repository

import (
	"context"
	"fmt"

	"sengine/internal/db"
)

type optOutRepository struct {
	pools *db.Pools
}

// NewOptOutRepository creates an opt-out deny-list repository
func NewOptOutRepository(pools *db.Pools) OptOutRepository {
	return &optOutRepository{pools: pools}
}

// Add inserts a deny-list entry; inserting an existing pair is a no-op.
func (r *optOutRepository) Add(ctx context.Context, userID int64, phone string) error {
	query := `
		INSERT INTO opt_outs (user_id, phone)
		VALUES ($1, $2)
		ON CONFLICT (user_id, phone) DO NOTHING
	`

	_, err := r.pools.Writer.ExecContext(ctx, query, userID, phone)
	if err != nil {
		return fmt.Errorf("failed to add opt-out: %w", err)
	}
	return nil
}

// Remove deletes a deny-list entry.
func (r *optOutRepository) Remove(ctx context.Context, userID int64, phone string) error {
	query := `DELETE FROM opt_outs WHERE user_id = $1 AND phone = $2`

	_, err := r.pools.Writer.ExecContext(ctx, query, userID, phone)
	if err != nil {
		return fmt.Errorf("failed to remove opt-out: %w", err)
	}
	return nil
}

// Exists checks deny-list membership.
func (r *optOutRepository) Exists(ctx context.Context, userID int64, phone string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM opt_outs WHERE user_id = $1 AND phone = $2)`

	var exists bool
	err := r.pools.Reader.QueryRowContext(ctx, query, userID, phone).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check opt-out: %w", err)
	}
	return exists, nil
}
