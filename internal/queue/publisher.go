package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes persistent JSON messages to an exchange. The channel
// runs in confirm mode so callers learn whether the broker actually accepted
// a publish, which the pre-queue scheduler relies on before flipping rows to
// queued.
type Publisher struct {
	conn *Connection

	// confirmedCh remembers which channel already saw confirm.select, so a
	// reconnect re-enables confirm mode on the replacement channel.
	confirmedCh *amqp.Channel
}

// NewPublisher creates a publisher over the shared connection.
func NewPublisher(conn *Connection) (*Publisher, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	return &Publisher{conn: conn}, nil
}

// Publish marshals the payload and publishes it persistently. Returns an
// error if the broker did not confirm the publish.
func (p *Publisher) Publish(ctx context.Context, exchange, key string, payload interface{}) error {
	return p.PublishWithID(ctx, exchange, key, "", payload)
}

// PublishWithID is Publish with an explicit MessageId stamped on the
// publishing (the pre-queue scheduler sets it to the row's unique token).
func (p *Publisher) PublishWithID(ctx context.Context, exchange, key, messageID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	if p.confirmedCh != ch {
		if err := ch.Confirm(false); err != nil {
			return fmt.Errorf("failed to enter confirm mode: %w", err)
		}
		p.confirmedCh = ch
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s/%s: %w", exchange, key, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for publish confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker rejected publish to %s/%s", exchange, key)
	}

	return nil
}
