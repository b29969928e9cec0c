package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"sengine/internal/gateway"
	"sengine/internal/logger"
	"sengine/internal/models"
	"sengine/internal/queue"
	"sengine/internal/repository"
	"sengine/internal/service"
)

// SMSGateway is the slice of the gateway client the dispatcher needs.
type SMSGateway interface {
	Send(ctx context.Context, req gateway.SendRequest) (*gateway.SendResult, error)
}

// SendPacer blocks until the process may place another gateway call.
type SendPacer interface {
	Wait(ctx context.Context) error
}

// EventEmitter fans a platform event out to subscribed webhooks.
type EventEmitter interface {
	Emit(ctx context.Context, userID, workspaceID int64, event string, data interface{})
}

// Dispatcher consumes drip.messages and performs the actual send. Every
// outcome acks the delivery; the database rows are authoritative and broker
// redelivery is never used for application retry.
type Dispatcher struct {
	scheduled    repository.ScheduledMessageRepository
	messages     repository.MessageRepository
	contacts     repository.ContactRepository
	users        repository.UserRepository
	dripContacts repository.DripContactRepository
	credits      *service.CreditService
	templates    *service.TemplateService
	gateway      SMSGateway
	pacer        SendPacer
	webhooks     EventEmitter
	log          logger.Logger
	callbackURL  string
}

// NewDispatcher creates an outbound dispatcher
func NewDispatcher(
	scheduled repository.ScheduledMessageRepository,
	messages repository.MessageRepository,
	contacts repository.ContactRepository,
	users repository.UserRepository,
	dripContacts repository.DripContactRepository,
	credits *service.CreditService,
	templates *service.TemplateService,
	gw SMSGateway,
	pacer SendPacer,
	webhooks EventEmitter,
	callbackURL string,
	log logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		scheduled:    scheduled,
		messages:     messages,
		contacts:     contacts,
		users:        users,
		dripContacts: dripContacts,
		credits:      credits,
		templates:    templates,
		gateway:      gw,
		pacer:        pacer,
		webhooks:     webhooks,
		callbackURL:  callbackURL,
		log:          log,
	}
}

// HandleDelivery processes one drip job. Returning nil acks the delivery;
// only undecodable payloads return an error (routed to the DLX by the
// consumer's retry policy).
func (d *Dispatcher) HandleDelivery(ctx context.Context, delivery amqp.Delivery) error {
	var job queue.DripJob
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		return fmt.Errorf("failed to decode drip job: %w", err)
	}

	d.process(ctx, &job)
	return nil
}

// process runs the ordered send pipeline. Failures before the deduction are
// free; failures after it refund before returning.
func (d *Dispatcher) process(ctx context.Context, job *queue.DripJob) {
	log := d.log.WithFields(map[string]interface{}{
		"scheduledMessageId": job.ScheduledMessageID,
		"dripContactId":      job.DripContactID,
		"userId":             job.UserID,
	})

	// Step 1: load-test jobs simulate gateway latency and touch nothing.
	if job.IsLoadTest {
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)
		return
	}

	// Step 2: idempotency. A row that already carries a provider id was sent
	// by a previous delivery of this job.
	sched, err := d.scheduled.GetByID(ctx, job.ScheduledMessageID)
	if err == repository.ErrNotFound {
		log.Warn("Scheduled message missing, dropping job")
		return
	}
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to load scheduled message")
		return
	}
	if sched.ProviderMessageID != nil && *sched.ProviderMessageID != "" {
		log.WithField("providerMessageId", *sched.ProviderMessageID).Info("Already sent, skipping")
		return
	}
	if sched.IsTerminal() {
		log.WithField("status", string(sched.Status)).Info("Row already terminal, skipping")
		return
	}

	// Step 3: contact validity. No charge has happened yet.
	contact, err := d.contacts.GetByID(ctx, job.ContactID)
	if err == repository.ErrNotFound {
		d.fail(ctx, job, "Contact not found")
		return
	}
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to load contact")
		return
	}
	if !contact.IsReachable() {
		reason := contactFailureReason(contact)
		if contact.OptedOut {
			d.skip(ctx, job, reason)
		} else {
			d.fail(ctx, job, reason)
		}
		return
	}

	// Step 4: user messaging gate.
	user, err := d.users.GetByID(ctx, job.UserID)
	if err == repository.ErrNotFound {
		d.fail(ctx, job, "User not found")
		return
	}
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to load user")
		return
	}
	if !user.CanSend() {
		d.fail(ctx, job, fmt.Sprintf("User messaging disabled (status=%s)", user.MessagingStatus))
		return
	}

	// Step 5: sender resolution.
	fromNumber, err := d.resolveSender(ctx, job)
	if err != nil {
		d.fail(ctx, job, "No active sending number")
		return
	}

	// Step 6: credit reservation.
	cost := job.CreditCost
	if cost <= 0 {
		cost = 1
	}
	enough, err := d.credits.HasEnoughCredits(ctx, job.UserID, cost)
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to check credits")
		return
	}
	if !enough {
		d.fail(ctx, job, "Insufficient credits")
		return
	}
	if _, err := d.credits.DeductForMessage(ctx, job.UserID, cost, job.DripContactID); err != nil {
		if err == repository.ErrInsufficientCredits {
			d.fail(ctx, job, "Insufficient credits")
			return
		}
		log.WithField("error", err.Error()).Error("Failed to deduct credits")
		return
	}

	// Every path below the deduction refunds on failure.

	// Step 7: pacing.
	if err := d.pacer.Wait(ctx); err != nil {
		d.failAfterDebit(ctx, job, cost, fmt.Sprintf("Pacing interrupted: %v", err))
		return
	}

	// Step 8: personalization.
	body := d.templates.Render(job.Message, contact, "")

	// Step 9: tracking tokens.
	bRef := newBRef()
	uid := uuid.New().String()

	// Step 10: gateway call with tenant credentials when present.
	req := gateway.SendRequest{
		From: fromNumber,
		To:   gateway.NormalizePhone(job.ToNumber),
		Body: body,
	}
	if job.MediaURL != "" {
		req.MediaURL = job.MediaURL
	}
	if d.callbackURL != "" {
		req.StatusCallback = fmt.Sprintf("%s?bRef=%s", d.callbackURL, bRef)
	}
	if user.HasProviderCredentials() {
		req.Credentials = &gateway.Credentials{
			AccountSID: *user.ProviderAccountID,
			AuthToken:  *user.ProviderAuthToken,
		}
	}

	result, err := d.gateway.Send(ctx, req)
	if err != nil {
		d.failAfterDebit(ctx, job, cost, fmt.Sprintf("Gateway request invalid: %v", err))
		return
	}

	// Step 12: gateway rejection.
	if !result.Success {
		reason := fmt.Sprintf("Gateway error %s: %s", result.ErrorCode, result.ErrorMessage)
		d.failAfterDebit(ctx, job, cost, reason)
		return
	}

	// Stamp the idempotency key first so a crash mid-bookkeeping is caught by
	// step 2 on redelivery.
	if err := d.scheduled.SetProviderMessageID(ctx, job.ScheduledMessageID, result.ProviderMessageID); err != nil {
		log.WithField("error", err.Error()).Error("Failed to stamp provider message id")
	}

	// Step 11: success bookkeeping.
	d.recordSuccess(ctx, job, contact, fromNumber, body, bRef, uid, result, log)
}

func (d *Dispatcher) recordSuccess(ctx context.Context, job *queue.DripJob, contact *models.Contact, fromNumber, body, bRef, uid string, result *gateway.SendResult, log logger.Logger) {
	now := time.Now().UTC()

	messageType := models.MessageTypeSMS
	if result.MediaCount > 0 || job.MediaURL != "" {
		messageType = models.MessageTypeMMS
	}

	msg := &models.Message{
		UID:               uid,
		BRef:              &bRef,
		ProviderMessageID: &result.ProviderMessageID,
		FromNumber:        fromNumber,
		ToNumber:          gateway.NormalizePhone(job.ToNumber),
		Body:              body,
		Status:            models.MessageStatusSent,
		Direction:         models.DirectionOutbound,
		IsDrip:            true,
		DripID:            &job.DripID,
		UserID:            job.UserID,
		WorkspaceID:       job.WorkspaceID,
		ContactID:         job.ContactID,
		MessageType:       messageType,
		IsRead:            true,
		IsCharged:         true,
	}
	if job.MediaURL != "" {
		msg.MediaURL = &job.MediaURL
	}
	if err := d.messages.Create(ctx, msg); err != nil {
		log.WithField("error", err.Error()).Error("Failed to insert message row")
		return
	}

	if err := d.scheduled.MarkSent(ctx, job.ScheduledMessageID, msg.ID, result.ProviderMessageID, now); err != nil {
		log.WithField("error", err.Error()).Error("Failed to mark scheduled row sent")
	}
	if err := d.dripContacts.MarkSent(ctx, job.DripContactID, msg.ID, bRef, now); err != nil {
		log.WithField("error", err.Error()).Error("Failed to mark drip contact sent")
	}
	if err := d.contacts.UpdateLastMessage(ctx, job.ContactID, body, now); err != nil {
		log.WithField("error", err.Error()).Warn("Failed to update contact last message")
	}

	d.webhooks.Emit(ctx, job.UserID, job.WorkspaceID, models.EventOutboundMessage, map[string]interface{}{
		"message_id":          msg.ID,
		"uid":                 uid,
		"b_ref":               bRef,
		"provider_message_id": result.ProviderMessageID,
		"to":                  msg.ToNumber,
		"from":                fromNumber,
		"body":                body,
		"drip_id":             job.DripID,
		"contact_id":          job.ContactID,
		"segments":            result.SegmentCount,
	})

	log.WithFields(map[string]interface{}{
		"messageId":         msg.ID,
		"providerMessageId": result.ProviderMessageID,
	}).Info("Drip message sent")
}

// resolveSender prefers the enrollment's configured number, fuzzy-matched by
// digits, and falls back to any active number.
func (d *Dispatcher) resolveSender(ctx context.Context, job *queue.DripJob) (string, error) {
	if job.FromNumber != "" {
		n, err := d.users.FindNumberByDigits(ctx, job.UserID, gateway.Digits(job.FromNumber))
		if err == nil {
			return n.Phone, nil
		}
		if err != repository.ErrNotFound {
			return "", err
		}
	}

	n, err := d.users.GetActiveNumber(ctx, job.UserID)
	if err != nil {
		return "", err
	}
	return n.Phone, nil
}

// fail marks both tracking rows terminal. Used before any charge happened.
func (d *Dispatcher) fail(ctx context.Context, job *queue.DripJob, reason string) {
	if err := d.scheduled.MarkFailed(ctx, job.ScheduledMessageID, reason); err != nil {
		d.log.WithFields(map[string]interface{}{
			"scheduledMessageId": job.ScheduledMessageID,
			"error":              err.Error(),
		}).Error("Failed to mark scheduled row failed")
	}
	if err := d.dripContacts.MarkFailed(ctx, job.DripContactID, reason); err != nil {
		d.log.WithFields(map[string]interface{}{
			"dripContactId": job.DripContactID,
			"error":         err.Error(),
		}).Error("Failed to mark drip contact failed")
	}

	d.log.WithFields(map[string]interface{}{
		"scheduledMessageId": job.ScheduledMessageID,
		"reason":             reason,
	}).Info("Drip message failed")
}

// skip marks the enrollment skipped rather than failed. Opt-outs are an
// expected outcome, not an error.
func (d *Dispatcher) skip(ctx context.Context, job *queue.DripJob, reason string) {
	if err := d.scheduled.MarkFailed(ctx, job.ScheduledMessageID, reason); err != nil {
		d.log.WithFields(map[string]interface{}{
			"scheduledMessageId": job.ScheduledMessageID,
			"error":              err.Error(),
		}).Error("Failed to mark scheduled row failed")
	}
	if err := d.dripContacts.MarkSkipped(ctx, job.DripContactID, reason); err != nil {
		d.log.WithFields(map[string]interface{}{
			"dripContactId": job.DripContactID,
			"error":         err.Error(),
		}).Error("Failed to mark drip contact skipped")
	}

	d.log.WithFields(map[string]interface{}{
		"scheduledMessageId": job.ScheduledMessageID,
		"reason":             reason,
	}).Info("Drip message skipped")
}

// failAfterDebit is fail plus the compensating refund. Step 13.
func (d *Dispatcher) failAfterDebit(ctx context.Context, job *queue.DripJob, cost int64, reason string) {
	if _, err := d.credits.RefundForMessage(ctx, job.UserID, cost, job.DripContactID); err != nil {
		d.log.WithFields(map[string]interface{}{
			"userId":        job.UserID,
			"dripContactId": job.DripContactID,
			"error":         err.Error(),
		}).Error("Failed to refund credits")
	}
	d.fail(ctx, job, reason)
}

func contactFailureReason(c *models.Contact) string {
	switch {
	case c.DeletedAt != nil:
		return "Contact deleted"
	case c.OptedOut:
		return "Contact opted out"
	case c.IsBlocked:
		return "Contact blocked"
	}
	return "Contact unreachable"
}

// newBRef builds the drip tracking token: DM-<ms>-<6 random digits>.
func newBRef() string {
	return fmt.Sprintf("DM-%d-%06d", time.Now().UnixMilli(), rand.Intn(1000000))
}
