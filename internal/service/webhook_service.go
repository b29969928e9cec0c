package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sengine/internal/logger"
	"sengine/internal/models"
	"sengine/internal/queue"
	"sengine/internal/repository"
)

// EventPublisher is the slice of the queue publisher the producer needs.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, key string, payload interface{}) error
}

// WebhookService fans platform events out to user-registered webhooks. It
// records a pending delivery row per matching subscription and enqueues a
// dispatch job; the HTTP POST happens in the webhook dispatcher worker.
type WebhookService struct {
	webhooks  repository.WebhookRepository
	publisher EventPublisher
	log       logger.Logger
}

// NewWebhookService creates a webhook producer service
func NewWebhookService(webhooks repository.WebhookRepository, publisher EventPublisher, log logger.Logger) *WebhookService {
	return &WebhookService{webhooks: webhooks, publisher: publisher, log: log}
}

// eventEnvelope is the body eventually POSTed to the subscriber.
type eventEnvelope struct {
	EventID   string      `json:"event_id"`
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Emit matches active subscriptions for the event tag and enqueues one
// delivery per match. Failures are logged and swallowed so event fan-out
// never blocks the send pipeline.
func (s *WebhookService) Emit(ctx context.Context, userID, workspaceID int64, event string, data interface{}) {
	if err := s.emit(ctx, userID, workspaceID, event, data); err != nil {
		s.log.WithFields(map[string]interface{}{
			"userId": userID,
			"event":  event,
			"error":  err.Error(),
		}).Warn("Webhook fan-out failed")
	}
}

func (s *WebhookService) emit(ctx context.Context, userID, workspaceID int64, event string, data interface{}) error {
	hooks, err := s.webhooks.ListActiveForEvent(ctx, userID, workspaceID, event)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if len(hooks) == 0 {
		return nil
	}

	eventID := uuid.New().String()
	envelope := eventEnvelope{
		EventID:   eventID,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	for _, hook := range hooks {
		delivery := &models.WebhookDelivery{
			WebhookID: hook.ID,
			EventID:   eventID,
			EventType: event,
			Payload:   payload,
			Status:    models.DeliveryStatusPending,
		}
		if err := s.webhooks.CreateDelivery(ctx, delivery); err != nil {
			s.log.WithFields(map[string]interface{}{
				"webhookId": hook.ID,
				"event":     event,
				"error":     err.Error(),
			}).Warn("Failed to create webhook delivery")
			continue
		}

		job := queue.WebhookDispatchJob{
			DeliveryID: delivery.ID,
			WebhookID:  hook.ID,
			EventID:    eventID,
			Event:      event,
		}
		if err := s.publisher.Publish(ctx, queue.ExchangeInbox, queue.KeyWebhook, job); err != nil {
			s.log.WithFields(map[string]interface{}{
				"webhookId":  hook.ID,
				"deliveryId": delivery.ID,
				"error":      err.Error(),
			}).Warn("Failed to enqueue webhook dispatch")
		}
	}

	return nil
}
