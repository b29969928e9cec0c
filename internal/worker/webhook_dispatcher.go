package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"sengine/internal/logger"
	"sengine/internal/models"
	"sengine/internal/queue"
	"sengine/internal/repository"
)

const (
	webhookTimeout      = 10 * time.Second
	webhookMaxRedirects = 3
	webhookUserAgent    = "Sengine-Webhook/1.0"
	maxResponseBodyLen  = 5000
)

// WebhookDispatcher consumes inbox.webhook and performs the signed POST to
// the subscriber. Attempt history lives in webhook_deliveries; retries are
// user-driven, so every job acks regardless of outcome.
type WebhookDispatcher struct {
	webhooks   repository.WebhookRepository
	httpClient *http.Client
	log        logger.Logger
}

// NewWebhookDispatcher creates a webhook delivery dispatcher
func NewWebhookDispatcher(webhooks repository.WebhookRepository, log logger.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		webhooks: webhooks,
		httpClient: &http.Client{
			Timeout: webhookTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= webhookMaxRedirects {
					return fmt.Errorf("stopped after %d redirects", webhookMaxRedirects)
				}
				return nil
			},
		},
		log: log,
	}
}

// HandleDelivery processes one dispatch job.
func (d *WebhookDispatcher) HandleDelivery(ctx context.Context, delivery amqp.Delivery) error {
	var job queue.WebhookDispatchJob
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		return fmt.Errorf("failed to decode webhook job: %w", err)
	}

	d.process(ctx, &job)
	return nil
}

func (d *WebhookDispatcher) process(ctx context.Context, job *queue.WebhookDispatchJob) {
	log := d.log.WithFields(map[string]interface{}{
		"deliveryId": job.DeliveryID,
		"webhookId":  job.WebhookID,
		"event":      job.Event,
	})

	hook, err := d.webhooks.GetByID(ctx, job.WebhookID)
	if err == repository.ErrNotFound {
		log.Warn("Webhook deleted, dropping delivery")
		return
	}
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to load webhook")
		return
	}

	record, err := d.webhooks.GetDeliveryByID(ctx, job.DeliveryID)
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to load delivery row")
		return
	}

	start := time.Now()
	responseStatus, responseBody, postErr := d.post(ctx, hook, record.Payload, job)
	duration := time.Since(start).Milliseconds()
	attemptedAt := time.Now().UTC()

	success := postErr == nil && responseStatus != nil &&
		*responseStatus >= 200 && *responseStatus <= 299

	status := models.DeliveryStatusFailed
	var errorMessage *string
	if success {
		status = models.DeliveryStatusSuccess
	} else if postErr != nil {
		msg := postErr.Error()
		errorMessage = &msg
	} else if responseStatus != nil {
		msg := fmt.Sprintf("endpoint returned HTTP %d", *responseStatus)
		errorMessage = &msg
	}

	if err := d.webhooks.RecordDeliveryAttempt(ctx, job.DeliveryID, status, responseStatus, responseBody, errorMessage, duration, attemptedAt); err != nil {
		log.WithField("error", err.Error()).Error("Failed to record delivery attempt")
	}

	if success {
		if err := d.webhooks.MarkTriggered(ctx, hook.ID, attemptedAt); err != nil {
			log.WithField("error", err.Error()).Warn("Failed to mark webhook triggered")
		}
		log.WithField("durationMs", duration).Info("Webhook delivered")
	} else {
		if err := d.webhooks.IncrementFailureCount(ctx, hook.ID); err != nil {
			log.WithField("error", err.Error()).Warn("Failed to increment failure count")
		}
		log.WithFields(map[string]interface{}{
			"durationMs": duration,
			"status":     responseStatus,
		}).Warn("Webhook delivery failed")
	}
}

func (d *WebhookDispatcher) post(ctx context.Context, hook *models.Webhook, payload []byte, job *queue.WebhookDispatchJob) (*int, *string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	req.Header.Set("X-Webhook-Event", job.Event)
	req.Header.Set("X-Webhook-Delivery", job.EventID)
	req.Header.Set("X-Webhook-Signature", Sign(hook.Secret, payload))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	statusCode := resp.StatusCode
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyLen+1))
	body := string(raw)
	if len(body) > maxResponseBodyLen {
		body = body[:maxResponseBodyLen]
	}

	return &statusCode, &body, nil
}

// Sign computes the delivery signature header value:
// sha256=<hex hmac-sha256(secret, body)>.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
