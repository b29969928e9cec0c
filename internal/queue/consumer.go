package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"sengine/internal/logger"
)

// RetryHeader carries the per-message redelivery count across requeues.
const RetryHeader = "x-retry-count"

// MaxHandlerRetries bounds requeues before a message is dead-lettered.
const MaxHandlerRetries = 3

// DeliveryHandler processes one broker delivery. Returning nil acks the
// message. Returning an error applies the retry policy: the delivery is
// republished with an incremented retry header until the budget is spent,
// then rejected to the queue's DLX.
type DeliveryHandler func(ctx context.Context, d amqp.Delivery) error

// Consumer consumes one queue with manual acknowledgement and a bounded
// prefetch. Stop cancels delivery of new messages and waits for in-flight
// handlers to finish.
type Consumer struct {
	conn     *Connection
	queue    string
	tag      string
	prefetch int
	handler  DeliveryHandler
	log      logger.Logger

	cancel   context.CancelFunc
	inflight sync.WaitGroup
	doneChan chan struct{}
}

// NewConsumer creates a consumer. tag must be unique per consumer process so
// the broker can cancel deliveries individually.
func NewConsumer(conn *Connection, queue, tag string, prefetch int, handler DeliveryHandler, log logger.Logger) (*Consumer, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if queue == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		queue:    queue,
		tag:      tag,
		prefetch: prefetch,
		handler:  handler,
		log:      log,
		doneChan: make(chan struct{}),
	}, nil
}

// Start begins consuming. The consume loop runs until Stop is called or the
// delivery channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queue,
		c.tag,
		false, // auto-ack off, manual acknowledgement everywhere
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", c.queue, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		defer close(c.doneChan)

		for {
			select {
			case <-runCtx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					c.log.WithField("queue", c.queue).Warn("delivery channel closed")
					return
				}
				c.inflight.Add(1)
				c.dispatch(runCtx, ch, d)
			}
		}
	}()

	c.log.WithFields(map[string]interface{}{
		"queue":    c.queue,
		"tag":      c.tag,
		"prefetch": c.prefetch,
	}).Info("consumer started")
	return nil
}

// dispatch runs the handler and applies the ack/retry policy. Runs inline on
// the consumer goroutine, so each consumer handles one delivery at a time;
// the prefetch window bounds how many unacked deliveries it holds.
func (c *Consumer) dispatch(ctx context.Context, ch *amqp.Channel, d amqp.Delivery) {
	defer c.inflight.Done()

	err := c.handler(ctx, d)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.log.WithField("error", ackErr.Error()).Error("failed to ack delivery")
		}
		return
	}

	retries := retryCount(d)
	c.log.WithFields(map[string]interface{}{
		"queue":   c.queue,
		"retries": retries,
		"error":   err.Error(),
	}).Warn("handler failed")

	if retries+1 >= MaxHandlerRetries {
		// Budget spent: reject without requeue so the queue's DLX takes it.
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.log.WithField("error", nackErr.Error()).Error("failed to dead-letter delivery")
		}
		return
	}

	// Republish with the incremented header, then ack the original. A plain
	// Nack requeue would lose the counter.
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[RetryHeader] = int32(retries + 1)

	pubErr := ch.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  d.ContentType,
		MessageId:    d.MessageId,
		Timestamp:    d.Timestamp,
		Headers:      headers,
		Body:         d.Body,
	})
	if pubErr != nil {
		// Could not requeue with the header; fall back to a broker requeue.
		c.log.WithField("error", pubErr.Error()).Error("failed to republish for retry")
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.log.WithField("error", nackErr.Error()).Error("failed to nack delivery")
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		c.log.WithField("error", ackErr.Error()).Error("failed to ack retried delivery")
	}
}

// Stop cancels the broker subscription, waits for in-flight handlers, and
// returns. Bounding the wait is the supervisor's job.
func (c *Consumer) Stop() error {
	ch, err := c.conn.Channel()
	if err == nil {
		if cancelErr := ch.Cancel(c.tag, false); cancelErr != nil {
			c.log.WithField("error", cancelErr.Error()).Warn("failed to cancel consumer")
		}
	}

	if c.cancel != nil {
		c.cancel()
	}
	<-c.doneChan
	c.inflight.Wait()

	c.log.WithField("queue", c.queue).Info("consumer stopped")
	return nil
}

// retryCount reads the retry header, tolerating the integer widths AMQP
// clients produce.
func retryCount(d amqp.Delivery) int {
	v, ok := d.Headers[RetryHeader]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
