package service

import (
	"context"
	"time"

	"sengine/internal/models"
	"sengine/internal/repository"
)

// mockCreditRepository mocks repository.CreditRepository
type mockCreditRepository struct {
	GetBalanceFunc func(ctx context.Context, userID int64) (int64, error)
	DeductFunc     func(ctx context.Context, userID, amount int64, description, refType string, refID int64) (*models.CreditTransaction, error)
	RefundFunc     func(ctx context.Context, userID, amount int64, description, refType string, refID int64) (*models.CreditTransaction, error)

	Calls map[string]int
}

func newMockCreditRepository() *mockCreditRepository {
	return &mockCreditRepository{Calls: make(map[string]int)}
}

func (m *mockCreditRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	m.Calls["GetBalance"]++
	if m.GetBalanceFunc != nil {
		return m.GetBalanceFunc(ctx, userID)
	}
	return 100, nil
}

func (m *mockCreditRepository) Deduct(ctx context.Context, userID, amount int64, description, refType string, refID int64) (*models.CreditTransaction, error) {
	m.Calls["Deduct"]++
	if m.DeductFunc != nil {
		return m.DeductFunc(ctx, userID, amount, description, refType, refID)
	}
	return &models.CreditTransaction{
		ID: 1, UserID: userID, Type: models.CreditTxDebit,
		Amount: -amount, BalanceAfter: 100 - amount,
		Description: description, ReferenceType: refType, ReferenceID: refID,
	}, nil
}

func (m *mockCreditRepository) Refund(ctx context.Context, userID, amount int64, description, refType string, refID int64) (*models.CreditTransaction, error) {
	m.Calls["Refund"]++
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, userID, amount, description, refType, refID)
	}
	return &models.CreditTransaction{
		ID: 2, UserID: userID, Type: models.CreditTxCredit,
		Amount: amount, BalanceAfter: 100 + amount,
		Description: description, ReferenceType: refType, ReferenceID: refID,
	}, nil
}

// mockWebhookRepository mocks repository.WebhookRepository
type mockWebhookRepository struct {
	ListActiveForEventFunc func(ctx context.Context, userID, workspaceID int64, event string) ([]*models.Webhook, error)
	CreateDeliveryFunc     func(ctx context.Context, delivery *models.WebhookDelivery) error

	Deliveries []*models.WebhookDelivery
	Calls      map[string]int
}

func newMockWebhookRepository() *mockWebhookRepository {
	return &mockWebhookRepository{Calls: make(map[string]int)}
}

func (m *mockWebhookRepository) ListActiveForEvent(ctx context.Context, userID, workspaceID int64, event string) ([]*models.Webhook, error) {
	m.Calls["ListActiveForEvent"]++
	if m.ListActiveForEventFunc != nil {
		return m.ListActiveForEventFunc(ctx, userID, workspaceID, event)
	}
	return nil, nil
}

func (m *mockWebhookRepository) GetByID(ctx context.Context, id int64) (*models.Webhook, error) {
	m.Calls["GetByID"]++
	return nil, repository.ErrNotFound
}

func (m *mockWebhookRepository) CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	m.Calls["CreateDelivery"]++
	if m.CreateDeliveryFunc != nil {
		return m.CreateDeliveryFunc(ctx, delivery)
	}
	delivery.ID = int64(len(m.Deliveries) + 1)
	m.Deliveries = append(m.Deliveries, delivery)
	return nil
}

func (m *mockWebhookRepository) GetDeliveryByID(ctx context.Context, id int64) (*models.WebhookDelivery, error) {
	m.Calls["GetDeliveryByID"]++
	return nil, repository.ErrNotFound
}

func (m *mockWebhookRepository) RecordDeliveryAttempt(ctx context.Context, id int64, status models.WebhookDeliveryStatus, responseStatus *int, responseBody, errorMessage *string, durationMS int64, attemptedAt time.Time) error {
	m.Calls["RecordDeliveryAttempt"]++
	return nil
}

func (m *mockWebhookRepository) MarkTriggered(ctx context.Context, webhookID int64, at time.Time) error {
	m.Calls["MarkTriggered"]++
	return nil
}

func (m *mockWebhookRepository) IncrementFailureCount(ctx context.Context, webhookID int64) error {
	m.Calls["IncrementFailureCount"]++
	return nil
}

// mockPublisher mocks the event publisher
type mockPublisher struct {
	PublishFunc func(ctx context.Context, exchange, key string, payload interface{}) error

	Published []publishedEvent
}

type publishedEvent struct {
	Exchange string
	Key      string
	Payload  interface{}
}

func (m *mockPublisher) Publish(ctx context.Context, exchange, key string, payload interface{}) error {
	m.Published = append(m.Published, publishedEvent{Exchange: exchange, Key: key, Payload: payload})
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, exchange, key, payload)
	}
	return nil
}
