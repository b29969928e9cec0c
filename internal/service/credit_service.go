package service

import (
	"context"
	"fmt"

	"sengine/internal/logger"
	"sengine/internal/models"
	"sengine/internal/repository"
)

// CreditService fronts the credit ledger for the send pipeline. The cheap
// balance read happens in the dispatcher just before the deduction; the
// authoritative check lives inside the repository's row-locked Deduct.
type CreditService struct {
	credits repository.CreditRepository
	log     logger.Logger
}

// NewCreditService creates a credit service
func NewCreditService(credits repository.CreditRepository, log logger.Logger) *CreditService {
	return &CreditService{credits: credits, log: log}
}

// HasEnoughCredits is an advisory pre-check. A true answer can still lose
// the race to a concurrent deduction.
func (s *CreditService) HasEnoughCredits(ctx context.Context, userID, amount int64) (bool, error) {
	balance, err := s.credits.GetBalance(ctx, userID)
	if err == repository.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check balance: %w", err)
	}
	return balance >= amount, nil
}

// DeductForMessage debits the send cost against the drip enrollment.
// Returns repository.ErrInsufficientCredits when the balance cannot cover it.
func (s *CreditService) DeductForMessage(ctx context.Context, userID, amount, dripContactID int64) (*models.CreditTransaction, error) {
	txRow, err := s.credits.Deduct(ctx, userID, amount, "Drip SMS send", models.CreditRefDripSMS, dripContactID)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"userId":        userID,
		"amount":        amount,
		"dripContactId": dripContactID,
		"balanceAfter":  txRow.BalanceAfter,
	}).Debug("Credits deducted")

	return txRow, nil
}

// RefundForMessage returns the send cost after a post-deduction failure.
func (s *CreditService) RefundForMessage(ctx context.Context, userID, amount, dripContactID int64) (*models.CreditTransaction, error) {
	txRow, err := s.credits.Refund(ctx, userID, amount, "Drip SMS refund", models.CreditRefDripSMS, dripContactID)
	if err != nil {
		return nil, fmt.Errorf("failed to refund credits: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"userId":        userID,
		"amount":        amount,
		"dripContactId": dripContactID,
		"balanceAfter":  txRow.BalanceAfter,
	}).Info("Credits refunded")

	return txRow, nil
}
