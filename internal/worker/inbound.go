package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"sengine/internal/gateway"
	"sengine/internal/logger"
	"sengine/internal/models"
	"sengine/internal/queue"
	"sengine/internal/repository"
)

// Opt-out and opt-in keywords, matched exactly after trim and lowercase.
var (
	optOutKeywords = map[string]bool{
		"stop": true, "unsubscribe": true, "cancel": true,
		"end": true, "quit": true, "stopall": true,
	}
	optInKeywords = map[string]bool{
		"start": true, "unstop": true, "subscribe": true, "yes": true,
	}
)

// NotifyPublisher publishes internal UI notifications.
type NotifyPublisher interface {
	Publish(ctx context.Context, exchange, key string, payload interface{}) error
}

// InboundWorker consumes inbox.inbound: provider-received SMS/MMS destined
// for a tenant's number. It owns contact auto-creation and the opt-out
// keyword contract.
type InboundWorker struct {
	users    repository.UserRepository
	contacts repository.ContactRepository
	messages repository.MessageRepository
	optOuts  repository.OptOutRepository
	webhooks EventEmitter
	notify   NotifyPublisher
	log      logger.Logger
}

// NewInboundWorker creates an inbound message ingestor
func NewInboundWorker(
	users repository.UserRepository,
	contacts repository.ContactRepository,
	messages repository.MessageRepository,
	optOuts repository.OptOutRepository,
	webhooks EventEmitter,
	notify NotifyPublisher,
	log logger.Logger,
) *InboundWorker {
	return &InboundWorker{
		users:    users,
		contacts: contacts,
		messages: messages,
		optOuts:  optOuts,
		webhooks: webhooks,
		notify:   notify,
		log:      log,
	}
}

// HandleDelivery processes one inbound event.
func (w *InboundWorker) HandleDelivery(ctx context.Context, delivery amqp.Delivery) error {
	var event queue.InboundEvent
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		return fmt.Errorf("failed to decode inbound event: %w", err)
	}

	w.process(ctx, &event.Data)
	return nil
}

func (w *InboundWorker) process(ctx context.Context, data *queue.InboundEventData) {
	log := w.log.WithFields(map[string]interface{}{
		"from": data.From,
		"to":   data.To,
	})

	number, err := w.users.FindNumberOwner(ctx, gateway.Digits(data.To))
	if err == repository.ErrNotFound {
		log.Warn("Inbound message to unknown number, dropping")
		return
	}
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to resolve receiving number")
		return
	}

	user, err := w.users.GetByID(ctx, number.UserID)
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to load receiving user")
		return
	}

	contact, err := w.findOrCreateContact(ctx, user, data.From)
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to resolve contact")
		return
	}

	keyword := strings.ToLower(strings.TrimSpace(data.Body))
	switch {
	case optOutKeywords[keyword]:
		w.applyOptOut(ctx, user, contact, log)
	case optInKeywords[keyword]:
		w.applyOptIn(ctx, user, contact, log)
	}

	msg, err := w.insertMessage(ctx, user, contact, number.Phone, data)
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to insert inbound message")
		return
	}

	now := time.Now().UTC()
	if err := w.contacts.UpdateLastMessage(ctx, contact.ID, data.Body, now); err != nil {
		log.WithField("error", err.Error()).Warn("Failed to update contact last message")
	}
	if err := w.contacts.ReopenChat(ctx, contact.ID); err != nil {
		log.WithField("error", err.Error()).Warn("Failed to reopen chat")
	}

	w.webhooks.Emit(ctx, user.ID, user.WorkspaceID, models.EventMessageInbound, map[string]interface{}{
		"message_id": msg.ID,
		"uid":        msg.UID,
		"from":       msg.FromNumber,
		"to":         msg.ToNumber,
		"body":       data.Body,
		"contact_id": contact.ID,
		"num_media":  data.NumMedia,
	})

	unread, err := w.contacts.UnreadCount(ctx, user.ID)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Failed to count unread messages")
		unread = 0
	}
	notification := queue.NotifyEvent{
		Type:        "message:new",
		UserID:      user.ID,
		WorkspaceID: user.WorkspaceID,
		Data: map[string]interface{}{
			"message_id":   msg.ID,
			"contact_id":   contact.ID,
			"unread_count": unread,
		},
	}
	if err := w.notify.Publish(ctx, queue.ExchangeInbox, queue.KeyNotify, notification); err != nil {
		log.WithField("error", err.Error()).Warn("Failed to publish notification")
	}

	log.WithFields(map[string]interface{}{
		"messageId": msg.ID,
		"contactId": contact.ID,
	}).Info("Inbound message ingested")
}

func (w *InboundWorker) findOrCreateContact(ctx context.Context, user *models.User, from string) (*models.Contact, error) {
	phone := gateway.NormalizePhone(from)

	contact, err := w.contacts.FindByPhone(ctx, user.ID, phone)
	if err == nil {
		return contact, nil
	}
	if err != repository.ErrNotFound {
		return nil, err
	}

	contact = &models.Contact{
		UserID:      user.ID,
		WorkspaceID: user.WorkspaceID,
		Phone:       phone,
		OpenChat:    true,
	}
	if err := w.contacts.Create(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

func (w *InboundWorker) applyOptOut(ctx context.Context, user *models.User, contact *models.Contact, log logger.Logger) {
	if err := w.contacts.SetOptedOut(ctx, contact.ID, true); err != nil {
		log.WithField("error", err.Error()).Error("Failed to set opt-out flag")
		return
	}
	if err := w.optOuts.Add(ctx, user.ID, contact.Phone); err != nil {
		log.WithField("error", err.Error()).Error("Failed to add deny-list entry")
	}
	contact.OptedOut = true

	w.webhooks.Emit(ctx, user.ID, user.WorkspaceID, models.EventContactOptOut, map[string]interface{}{
		"contact_id": contact.ID,
		"phone":      contact.Phone,
	})
	log.WithField("contactId", contact.ID).Info("Contact opted out")
}

func (w *InboundWorker) applyOptIn(ctx context.Context, user *models.User, contact *models.Contact, log logger.Logger) {
	if err := w.contacts.SetOptedOut(ctx, contact.ID, false); err != nil {
		log.WithField("error", err.Error()).Error("Failed to clear opt-out flag")
		return
	}
	if err := w.optOuts.Remove(ctx, user.ID, contact.Phone); err != nil {
		log.WithField("error", err.Error()).Error("Failed to remove deny-list entry")
	}
	contact.OptedOut = false

	w.webhooks.Emit(ctx, user.ID, user.WorkspaceID, models.EventContactOptIn, map[string]interface{}{
		"contact_id": contact.ID,
		"phone":      contact.Phone,
	})
	log.WithField("contactId", contact.ID).Info("Contact opted in")
}

func (w *InboundWorker) insertMessage(ctx context.Context, user *models.User, contact *models.Contact, toNumber string, data *queue.InboundEventData) (*models.Message, error) {
	messageType := models.MessageTypeSMS
	if data.NumMedia > 0 {
		messageType = models.MessageTypeMMS
	}

	msg := &models.Message{
		UID:         uuid.New().String(),
		FromNumber:  gateway.NormalizePhone(data.From),
		ToNumber:    toNumber,
		Body:        data.Body,
		Status:      models.MessageStatusDelivered,
		Direction:   models.DirectionInbound,
		UserID:      user.ID,
		WorkspaceID: user.WorkspaceID,
		ContactID:   contact.ID,
		MessageType: messageType,
		IsRead:      false,
	}
	if data.MessageSID != "" {
		msg.ProviderMessageID = &data.MessageSID
	}
	if data.NumMedia > 0 && len(data.MediaURLs) > 0 {
		msg.MediaURL = &data.MediaURLs[0]
	}

	if err := w.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
