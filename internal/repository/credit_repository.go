package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sengine/internal/db"
	"sengine/internal/models"
)

type creditRepository struct {
	pools *db.Pools
}

// NewCreditRepository creates a credit ledger repository
func NewCreditRepository(pools *db.Pools) CreditRepository {
	return &creditRepository{pools: pools}
}

// GetBalance reads the current balance without a lock. Callers that need an
// authoritative answer must go through Deduct, which re-checks under the row
// lock.
func (r *creditRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	query := `SELECT balance FROM user_credits WHERE user_id = $1`

	var balance int64
	err := r.pools.Reader.QueryRowContext(ctx, query, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// Deduct debits the balance inside a transaction holding the row lock, and
// writes the immutable audit row. Insufficient balance rolls back and returns
// ErrInsufficientCredits.
func (r *creditRepository) Deduct(ctx context.Context, userID, amount int64, description, refType string, refID int64) (*models.CreditTransaction, error) {
	tx, err := r.pools.Writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balance, totalSpent int64
	err = tx.QueryRowContext(ctx,
		`SELECT balance, total_spent FROM user_credits WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&balance, &totalSpent)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock credit row: %w", err)
	}

	if balance < amount {
		return nil, ErrInsufficientCredits
	}

	newBalance := balance - amount
	_, err = tx.ExecContext(ctx,
		`UPDATE user_credits SET balance = $1, total_spent = $2, updated_at = NOW() WHERE user_id = $3`,
		newBalance, totalSpent+amount, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	txRow := &models.CreditTransaction{
		UserID:        userID,
		Type:          models.CreditTxDebit,
		Amount:        -amount,
		BalanceAfter:  newBalance,
		Description:   description,
		ReferenceType: refType,
		ReferenceID:   refID,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO credit_transactions (user_id, type, amount, balance_after, description, reference_type, reference_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		txRow.UserID, txRow.Type, txRow.Amount, txRow.BalanceAfter,
		txRow.Description, txRow.ReferenceType, txRow.ReferenceID,
	).Scan(&txRow.ID, &txRow.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert debit transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deduction: %w", err)
	}

	return txRow, nil
}

// Refund credits an amount back with a matching audit row. Refunds never
// fail on balance.
func (r *creditRepository) Refund(ctx context.Context, userID, amount int64, description, refType string, refID int64) (*models.CreditTransaction, error) {
	tx, err := r.pools.Writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balance, totalSpent int64
	err = tx.QueryRowContext(ctx,
		`SELECT balance, total_spent FROM user_credits WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&balance, &totalSpent)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock credit row: %w", err)
	}

	newBalance := balance + amount
	newSpent := totalSpent - amount
	if newSpent < 0 {
		newSpent = 0
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE user_credits SET balance = $1, total_spent = $2, updated_at = NOW() WHERE user_id = $3`,
		newBalance, newSpent, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	txRow := &models.CreditTransaction{
		UserID:        userID,
		Type:          models.CreditTxCredit,
		Amount:        amount,
		BalanceAfter:  newBalance,
		Description:   description,
		ReferenceType: refType,
		ReferenceID:   refID,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO credit_transactions (user_id, type, amount, balance_after, description, reference_type, reference_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		txRow.UserID, txRow.Type, txRow.Amount, txRow.BalanceAfter,
		txRow.Description, txRow.ReferenceType, txRow.ReferenceID,
	).Scan(&txRow.ID, &txRow.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert credit transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit refund: %w", err)
	}

	return txRow, nil
}
