package worker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"sengine/internal/logger"
	"sengine/internal/models"
	"sengine/internal/queue"
	"sengine/internal/repository"
)

// statusMapping translates a provider textual status into the coarse numeric
// code stored on the message row.
var statusMapping = map[string]int{
	"queued":      models.MessageStatusQueued,
	"sending":     models.MessageStatusSent,
	"sent":        models.MessageStatusSent,
	"delivered":   models.MessageStatusDelivered,
	"undelivered": models.MessageStatusUndelivered,
	"failed":      models.MessageStatusFailed,
	"read":        models.MessageStatusDelivered,
}

// StatusReconciler consumes provider delivery reports from inbox.status and
// applies them to message rows. A missed or unmatched report is logged and
// acked; the provider resends on its own schedule.
type StatusReconciler struct {
	messages repository.MessageRepository
	webhooks EventEmitter
	log      logger.Logger
}

// NewStatusReconciler creates a delivery status reconciler
func NewStatusReconciler(messages repository.MessageRepository, webhooks EventEmitter, log logger.Logger) *StatusReconciler {
	return &StatusReconciler{messages: messages, webhooks: webhooks, log: log}
}

// HandleDelivery processes one status event.
func (r *StatusReconciler) HandleDelivery(ctx context.Context, delivery amqp.Delivery) error {
	var event queue.StatusEvent
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		return fmt.Errorf("failed to decode status event: %w", err)
	}

	r.process(ctx, &event.Data)
	return nil
}

func (r *StatusReconciler) process(ctx context.Context, data *queue.StatusEventData) {
	log := r.log.WithFields(map[string]interface{}{
		"messageSid": data.MessageSID,
		"status":     data.Status,
	})

	msg, err := r.lookup(ctx, data)
	if err == repository.ErrNotFound {
		log.Warn("Status event matched no message")
		return
	}
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to look up message")
		return
	}

	coarse, known := statusMapping[data.Status]
	if !known {
		// Unknown provider statuses propagate as textual only.
		coarse = msg.Status
		log.Warn("Unknown provider status, keeping coarse status")
	}

	if err := r.messages.UpdateDeliveryStatus(ctx, msg.ID, coarse, data.Status); err != nil {
		log.WithField("error", err.Error()).Error("Failed to update delivery status")
		return
	}

	switch data.Status {
	case "delivered":
		r.webhooks.Emit(ctx, msg.UserID, msg.WorkspaceID, models.EventMessageDelivered, r.eventData(msg, data))
	case "failed", "undelivered":
		r.webhooks.Emit(ctx, msg.UserID, msg.WorkspaceID, models.EventMessageFailed, r.eventData(msg, data))
	}

	log.WithField("messageId", msg.ID).Debug("Delivery status reconciled")
}

// lookup resolves the message by b_ref first, then by provider message id.
func (r *StatusReconciler) lookup(ctx context.Context, data *queue.StatusEventData) (*models.Message, error) {
	if data.BRef != "" {
		msg, err := r.messages.GetByBRef(ctx, data.BRef)
		if err == nil {
			return msg, nil
		}
		if err != repository.ErrNotFound {
			return nil, err
		}
	}
	if data.MessageSID != "" {
		return r.messages.GetByProviderMessageID(ctx, data.MessageSID)
	}
	return nil, repository.ErrNotFound
}

func (r *StatusReconciler) eventData(msg *models.Message, data *queue.StatusEventData) map[string]interface{} {
	out := map[string]interface{}{
		"message_id": msg.ID,
		"uid":        msg.UID,
		"status":     data.Status,
		"to":         msg.ToNumber,
		"from":       msg.FromNumber,
	}
	if msg.BRef != nil {
		out["b_ref"] = *msg.BRef
	}
	if msg.ProviderMessageID != nil {
		out["provider_message_id"] = *msg.ProviderMessageID
	}
	if data.ErrorCode != "" {
		out["error_code"] = data.ErrorCode
	}
	if data.ErrorMessage != "" {
		out["error_message"] = data.ErrorMessage
	}
	return out
}
