package worker

import (
	"context"
	"time"

	"sengine/internal/gateway"
	"sengine/internal/models"
	"sengine/internal/repository"
)

// mockScheduledRepo mocks repository.ScheduledMessageRepository
type mockScheduledRepo struct {
	GetByIDFunc              func(ctx context.Context, id int64) (*models.ScheduledMessage, error)
	GetDueFunc               func(ctx context.Context, before time.Time, limit int) ([]*models.ScheduledMessage, error)
	MarkQueuedFunc           func(ctx context.Context, ids []int64, queuedAt time.Time) (int64, error)
	MarkSentFunc             func(ctx context.Context, id int64, messageID int64, providerMessageID string, sentAt time.Time) error
	MarkFailedFunc           func(ctx context.Context, id int64, reason string) error
	SetProviderMessageIDFunc func(ctx context.Context, id int64, sid string) error

	Calls       map[string]int
	QueuedIDs   []int64
	FailReasons []string
}

func newMockScheduledRepo() *mockScheduledRepo {
	return &mockScheduledRepo{Calls: make(map[string]int)}
}

func (m *mockScheduledRepo) GetByID(ctx context.Context, id int64) (*models.ScheduledMessage, error) {
	m.Calls["GetByID"]++
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return &models.ScheduledMessage{ID: id, Status: models.ScheduledStatusQueued}, nil
}

func (m *mockScheduledRepo) GetDue(ctx context.Context, before time.Time, limit int) ([]*models.ScheduledMessage, error) {
	m.Calls["GetDue"]++
	if m.GetDueFunc != nil {
		return m.GetDueFunc(ctx, before, limit)
	}
	return nil, nil
}

func (m *mockScheduledRepo) MarkQueued(ctx context.Context, ids []int64, queuedAt time.Time) (int64, error) {
	m.Calls["MarkQueued"]++
	m.QueuedIDs = append(m.QueuedIDs, ids...)
	if m.MarkQueuedFunc != nil {
		return m.MarkQueuedFunc(ctx, ids, queuedAt)
	}
	return int64(len(ids)), nil
}

func (m *mockScheduledRepo) MarkSending(ctx context.Context, id int64) error {
	m.Calls["MarkSending"]++
	return nil
}

func (m *mockScheduledRepo) MarkSent(ctx context.Context, id int64, messageID int64, providerMessageID string, sentAt time.Time) error {
	m.Calls["MarkSent"]++
	if m.MarkSentFunc != nil {
		return m.MarkSentFunc(ctx, id, messageID, providerMessageID, sentAt)
	}
	return nil
}

func (m *mockScheduledRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	m.Calls["MarkFailed"]++
	m.FailReasons = append(m.FailReasons, reason)
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id, reason)
	}
	return nil
}

func (m *mockScheduledRepo) SetProviderMessageID(ctx context.Context, id int64, sid string) error {
	m.Calls["SetProviderMessageID"]++
	if m.SetProviderMessageIDFunc != nil {
		return m.SetProviderMessageIDFunc(ctx, id, sid)
	}
	return nil
}

// mockMessageRepo mocks repository.MessageRepository
type mockMessageRepo struct {
	CreateFunc                 func(ctx context.Context, message *models.Message) error
	GetByBRefFunc              func(ctx context.Context, bRef string) (*models.Message, error)
	GetByProviderMessageIDFunc func(ctx context.Context, sid string) (*models.Message, error)
	UpdateDeliveryStatusFunc   func(ctx context.Context, id int64, status int, deliveryStatus string) error

	Calls   map[string]int
	Created []*models.Message
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{Calls: make(map[string]int)}
}

func (m *mockMessageRepo) Create(ctx context.Context, message *models.Message) error {
	m.Calls["Create"]++
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, message)
	}
	message.ID = int64(len(m.Created) + 1)
	m.Created = append(m.Created, message)
	return nil
}

func (m *mockMessageRepo) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	m.Calls["GetByID"]++
	return nil, repository.ErrNotFound
}

func (m *mockMessageRepo) GetByBRef(ctx context.Context, bRef string) (*models.Message, error) {
	m.Calls["GetByBRef"]++
	if m.GetByBRefFunc != nil {
		return m.GetByBRefFunc(ctx, bRef)
	}
	return nil, repository.ErrNotFound
}

func (m *mockMessageRepo) GetByProviderMessageID(ctx context.Context, sid string) (*models.Message, error) {
	m.Calls["GetByProviderMessageID"]++
	if m.GetByProviderMessageIDFunc != nil {
		return m.GetByProviderMessageIDFunc(ctx, sid)
	}
	return nil, repository.ErrNotFound
}

func (m *mockMessageRepo) SetProviderMessageID(ctx context.Context, id int64, sid string) error {
	m.Calls["SetProviderMessageID"]++
	return nil
}

func (m *mockMessageRepo) UpdateDeliveryStatus(ctx context.Context, id int64, status int, deliveryStatus string) error {
	m.Calls["UpdateDeliveryStatus"]++
	if m.UpdateDeliveryStatusFunc != nil {
		return m.UpdateDeliveryStatusFunc(ctx, id, status, deliveryStatus)
	}
	return nil
}

// mockContactRepo mocks repository.ContactRepository
type mockContactRepo struct {
	GetByIDFunc     func(ctx context.Context, id int64) (*models.Contact, error)
	FindByPhoneFunc func(ctx context.Context, userID int64, phone string) (*models.Contact, error)
	CreateFunc      func(ctx context.Context, contact *models.Contact) error
	UnreadCountFunc func(ctx context.Context, userID int64) (int, error)

	Calls    map[string]int
	OptedOut map[int64]bool
}

func newMockContactRepo() *mockContactRepo {
	return &mockContactRepo{Calls: make(map[string]int), OptedOut: make(map[int64]bool)}
}

func (m *mockContactRepo) GetByID(ctx context.Context, id int64) (*models.Contact, error) {
	m.Calls["GetByID"]++
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return &models.Contact{ID: id, Phone: "+15550002222"}, nil
}

func (m *mockContactRepo) FindByPhone(ctx context.Context, userID int64, phone string) (*models.Contact, error) {
	m.Calls["FindByPhone"]++
	if m.FindByPhoneFunc != nil {
		return m.FindByPhoneFunc(ctx, userID, phone)
	}
	return nil, repository.ErrNotFound
}

func (m *mockContactRepo) Create(ctx context.Context, contact *models.Contact) error {
	m.Calls["Create"]++
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, contact)
	}
	contact.ID = 100
	return nil
}

func (m *mockContactRepo) UpdateLastMessage(ctx context.Context, id int64, body string, at time.Time) error {
	m.Calls["UpdateLastMessage"]++
	return nil
}

func (m *mockContactRepo) SetOptedOut(ctx context.Context, id int64, optedOut bool) error {
	m.Calls["SetOptedOut"]++
	m.OptedOut[id] = optedOut
	return nil
}

func (m *mockContactRepo) ReopenChat(ctx context.Context, id int64) error {
	m.Calls["ReopenChat"]++
	return nil
}

func (m *mockContactRepo) UnreadCount(ctx context.Context, userID int64) (int, error) {
	m.Calls["UnreadCount"]++
	if m.UnreadCountFunc != nil {
		return m.UnreadCountFunc(ctx, userID)
	}
	return 3, nil
}

// mockUserRepo mocks repository.UserRepository
type mockUserRepo struct {
	GetByIDFunc            func(ctx context.Context, id int64) (*models.User, error)
	GetActiveNumberFunc    func(ctx context.Context, userID int64) (*models.UserNumber, error)
	FindNumberByDigitsFunc func(ctx context.Context, userID int64, digits string) (*models.UserNumber, error)
	FindNumberOwnerFunc    func(ctx context.Context, digits string) (*models.UserNumber, error)

	Calls map[string]int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{Calls: make(map[string]int)}
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	m.Calls["GetByID"]++
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return &models.User{ID: id, MessagingStatus: models.MessagingStatusActive}, nil
}

func (m *mockUserRepo) GetActiveNumber(ctx context.Context, userID int64) (*models.UserNumber, error) {
	m.Calls["GetActiveNumber"]++
	if m.GetActiveNumberFunc != nil {
		return m.GetActiveNumberFunc(ctx, userID)
	}
	return &models.UserNumber{ID: 1, UserID: userID, Phone: "+15550001111"}, nil
}

func (m *mockUserRepo) FindNumberByDigits(ctx context.Context, userID int64, digits string) (*models.UserNumber, error) {
	m.Calls["FindNumberByDigits"]++
	if m.FindNumberByDigitsFunc != nil {
		return m.FindNumberByDigitsFunc(ctx, userID, digits)
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) FindNumberOwner(ctx context.Context, digits string) (*models.UserNumber, error) {
	m.Calls["FindNumberOwner"]++
	if m.FindNumberOwnerFunc != nil {
		return m.FindNumberOwnerFunc(ctx, digits)
	}
	return nil, repository.ErrNotFound
}

// mockDripContactRepo mocks repository.DripContactRepository
type mockDripContactRepo struct {
	Calls        map[string]int
	SentIDs      []int64
	FailReasons  []string
	SkipReasons  []string
	LastSentBRef string
}

func newMockDripContactRepo() *mockDripContactRepo {
	return &mockDripContactRepo{Calls: make(map[string]int)}
}

func (m *mockDripContactRepo) GetByID(ctx context.Context, id int64) (*models.DripContact, error) {
	m.Calls["GetByID"]++
	return &models.DripContact{ID: id}, nil
}

func (m *mockDripContactRepo) MarkSent(ctx context.Context, id int64, messageID int64, bRef string, sentAt time.Time) error {
	m.Calls["MarkSent"]++
	m.SentIDs = append(m.SentIDs, id)
	m.LastSentBRef = bRef
	return nil
}

func (m *mockDripContactRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	m.Calls["MarkFailed"]++
	m.FailReasons = append(m.FailReasons, reason)
	return nil
}

func (m *mockDripContactRepo) MarkSkipped(ctx context.Context, id int64, reason string) error {
	m.Calls["MarkSkipped"]++
	m.SkipReasons = append(m.SkipReasons, reason)
	return nil
}

// mockCreditRepo mocks repository.CreditRepository
type mockCreditRepo struct {
	GetBalanceFunc func(ctx context.Context, userID int64) (int64, error)
	DeductFunc     func(ctx context.Context, userID, amount int64, description, refType string, refID int64) (*models.CreditTransaction, error)

	Calls    map[string]int
	Deducted int64
	Refunded int64
}

func newMockCreditRepo() *mockCreditRepo {
	return &mockCreditRepo{Calls: make(map[string]int)}
}

func (m *mockCreditRepo) GetBalance(ctx context.Context, userID int64) (int64, error) {
	m.Calls["GetBalance"]++
	if m.GetBalanceFunc != nil {
		return m.GetBalanceFunc(ctx, userID)
	}
	return 100, nil
}

func (m *mockCreditRepo) Deduct(ctx context.Context, userID, amount int64, description, refType string, refID int64) (*models.CreditTransaction, error) {
	m.Calls["Deduct"]++
	if m.DeductFunc != nil {
		return m.DeductFunc(ctx, userID, amount, description, refType, refID)
	}
	m.Deducted += amount
	return &models.CreditTransaction{Amount: -amount, BalanceAfter: 100 - m.Deducted}, nil
}

func (m *mockCreditRepo) Refund(ctx context.Context, userID, amount int64, description, refType string, refID int64) (*models.CreditTransaction, error) {
	m.Calls["Refund"]++
	m.Refunded += amount
	return &models.CreditTransaction{Amount: amount, BalanceAfter: 100 - m.Deducted + m.Refunded}, nil
}

// mockWebhookRepo mocks repository.WebhookRepository
type mockWebhookRepo struct {
	GetByIDFunc         func(ctx context.Context, id int64) (*models.Webhook, error)
	GetDeliveryByIDFunc func(ctx context.Context, id int64) (*models.WebhookDelivery, error)

	Calls            map[string]int
	RecordedStatus   models.WebhookDeliveryStatus
	RecordedResponse *int
	RecordedError    *string
}

func newMockWebhookRepo() *mockWebhookRepo {
	return &mockWebhookRepo{Calls: make(map[string]int)}
}

func (m *mockWebhookRepo) ListActiveForEvent(ctx context.Context, userID, workspaceID int64, event string) ([]*models.Webhook, error) {
	m.Calls["ListActiveForEvent"]++
	return nil, nil
}

func (m *mockWebhookRepo) GetByID(ctx context.Context, id int64) (*models.Webhook, error) {
	m.Calls["GetByID"]++
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockWebhookRepo) CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	m.Calls["CreateDelivery"]++
	return nil
}

func (m *mockWebhookRepo) GetDeliveryByID(ctx context.Context, id int64) (*models.WebhookDelivery, error) {
	m.Calls["GetDeliveryByID"]++
	if m.GetDeliveryByIDFunc != nil {
		return m.GetDeliveryByIDFunc(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockWebhookRepo) RecordDeliveryAttempt(ctx context.Context, id int64, status models.WebhookDeliveryStatus, responseStatus *int, responseBody, errorMessage *string, durationMS int64, attemptedAt time.Time) error {
	m.Calls["RecordDeliveryAttempt"]++
	m.RecordedStatus = status
	m.RecordedResponse = responseStatus
	m.RecordedError = errorMessage
	return nil
}

func (m *mockWebhookRepo) MarkTriggered(ctx context.Context, webhookID int64, at time.Time) error {
	m.Calls["MarkTriggered"]++
	return nil
}

func (m *mockWebhookRepo) IncrementFailureCount(ctx context.Context, webhookID int64) error {
	m.Calls["IncrementFailureCount"]++
	return nil
}

// mockGateway mocks the SMS gateway client
type mockGateway struct {
	SendFunc func(ctx context.Context, req gateway.SendRequest) (*gateway.SendResult, error)

	Calls    int
	Requests []gateway.SendRequest
}

func (m *mockGateway) Send(ctx context.Context, req gateway.SendRequest) (*gateway.SendResult, error) {
	m.Calls++
	m.Requests = append(m.Requests, req)
	if m.SendFunc != nil {
		return m.SendFunc(ctx, req)
	}
	return &gateway.SendResult{Success: true, ProviderMessageID: "SM123", Status: "queued", SegmentCount: 1}, nil
}

// mockPacer mocks the shared send rate limiter
type mockPacer struct {
	WaitFunc func(ctx context.Context) error

	Waits int
}

func (m *mockPacer) Wait(ctx context.Context) error {
	m.Waits++
	if m.WaitFunc != nil {
		return m.WaitFunc(ctx)
	}
	return nil
}

// mockEmitter records emitted webhook events
type mockEmitter struct {
	Events []emittedEvent
}

type emittedEvent struct {
	UserID      int64
	WorkspaceID int64
	Event       string
	Data        interface{}
}

func (m *mockEmitter) Emit(ctx context.Context, userID, workspaceID int64, event string, data interface{}) {
	m.Events = append(m.Events, emittedEvent{UserID: userID, WorkspaceID: workspaceID, Event: event, Data: data})
}

// mockJobPublisher records confirmed publishes
type mockJobPublisher struct {
	PublishWithIDFunc func(ctx context.Context, exchange, key, messageID string, payload interface{}) error

	Published []publishedJob
}

type publishedJob struct {
	Exchange  string
	Key       string
	MessageID string
	Payload   interface{}
}

func (m *mockJobPublisher) PublishWithID(ctx context.Context, exchange, key, messageID string, payload interface{}) error {
	if m.PublishWithIDFunc != nil {
		if err := m.PublishWithIDFunc(ctx, exchange, key, messageID, payload); err != nil {
			return err
		}
	}
	m.Published = append(m.Published, publishedJob{Exchange: exchange, Key: key, MessageID: messageID, Payload: payload})
	return nil
}

// mockBroker reports connection health
type mockBroker struct {
	Connected bool
}

func (m *mockBroker) IsConnected() bool { return m.Connected }

// mockNotifyPublisher records notification publishes
type mockNotifyPublisher struct {
	Published []publishedJob
}

func (m *mockNotifyPublisher) Publish(ctx context.Context, exchange, key string, payload interface{}) error {
	m.Published = append(m.Published, publishedJob{Exchange: exchange, Key: key, Payload: payload})
	return nil
}

// mockOptOutRepo mocks repository.OptOutRepository
type mockOptOutRepo struct {
	Calls   map[string]int
	Added   []string
	Removed []string
}

func newMockOptOutRepo() *mockOptOutRepo {
	return &mockOptOutRepo{Calls: make(map[string]int)}
}

func (m *mockOptOutRepo) Add(ctx context.Context, userID int64, phone string) error {
	m.Calls["Add"]++
	m.Added = append(m.Added, phone)
	return nil
}

func (m *mockOptOutRepo) Remove(ctx context.Context, userID int64, phone string) error {
	m.Calls["Remove"]++
	m.Removed = append(m.Removed, phone)
	return nil
}

func (m *mockOptOutRepo) Exists(ctx context.Context, userID int64, phone string) (bool, error) {
	m.Calls["Exists"]++
	return false, nil
}
