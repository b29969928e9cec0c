package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sengine/internal/db"
	"sengine/internal/models"
)

type userRepository struct {
	pools *db.Pools
}

// NewUserRepository creates a user repository
func NewUserRepository(pools *db.Pools) UserRepository {
	return &userRepository{pools: pools}
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, workspace_id, provider_account_id, provider_auth_token, messaging_status
		FROM users
		WHERE id = $1
	`

	u := &models.User{}
	err := r.pools.Reader.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.WorkspaceID, &u.ProviderAccountID, &u.ProviderAuthToken, &u.MessagingStatus,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetActiveNumber returns any active, non-deleted sending number for a user.
func (r *userRepository) GetActiveNumber(ctx context.Context, userID int64) (*models.UserNumber, error) {
	query := `
		SELECT id, user_id, phone, status, deleted_at
		FROM user_numbers
		WHERE user_id = $1 AND status = $2 AND deleted_at IS NULL
		ORDER BY id ASC
		LIMIT 1
	`

	n := &models.UserNumber{}
	err := r.pools.Reader.QueryRowContext(ctx, query, userID, models.UserNumberStatusActive).Scan(
		&n.ID, &n.UserID, &n.Phone, &n.Status, &n.DeletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active number: %w", err)
	}
	return n, nil
}

// FindNumberOwner resolves which tenant owns a receiving number. Inbound
// traffic carries only the dialed number, so the match runs across all
// active numbers.
func (r *userRepository) FindNumberOwner(ctx context.Context, digits string) (*models.UserNumber, error) {
	query := `
		SELECT id, user_id, phone, status, deleted_at
		FROM user_numbers
		WHERE status = $1
			AND deleted_at IS NULL
			AND regexp_replace(phone, '[^0-9]', '', 'g') = $2
		ORDER BY id ASC
		LIMIT 1
	`

	n := &models.UserNumber{}
	err := r.pools.Reader.QueryRowContext(ctx, query, models.UserNumberStatusActive, digits).Scan(
		&n.ID, &n.UserID, &n.Phone, &n.Status, &n.DeletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find number owner: %w", err)
	}
	return n, nil
}

// FindNumberByDigits fuzzy-matches a sending number by comparing digit
// strings, so "+1 (555) 111-2222" matches "15551112222".
func (r *userRepository) FindNumberByDigits(ctx context.Context, userID int64, digits string) (*models.UserNumber, error) {
	query := `
		SELECT id, user_id, phone, status, deleted_at
		FROM user_numbers
		WHERE user_id = $1
			AND status = $2
			AND deleted_at IS NULL
			AND regexp_replace(phone, '[^0-9]', '', 'g') = $3
		ORDER BY id ASC
		LIMIT 1
	`

	n := &models.UserNumber{}
	err := r.pools.Reader.QueryRowContext(ctx, query, userID, models.UserNumberStatusActive, digits).Scan(
		&n.ID, &n.UserID, &n.Phone, &n.Status, &n.DeletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find number by digits: %w", err)
	}
	return n, nil
}
