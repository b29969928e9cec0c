package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"sengine/internal/logger"
)

const (
	reconnectBaseDelay  = 1 * time.Second
	reconnectMaxDelay   = 30 * time.Second
	maxConnectAttempts  = 10
)

// ErrBrokerUnavailable is returned when the broker cannot be reached after
// the full reconnect budget.
var ErrBrokerUnavailable = errors.New("broker unavailable after maximum connect attempts")

// Connection supervises a single RabbitMQ connection and a shared channel.
// All publishers and consumers in the process go through it; channel access
// is serialized behind the mutex and reconnects happen on demand.
type Connection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	url     string
	log     logger.Logger
	mu      sync.Mutex
}

// NewConnection dials RabbitMQ with exponential backoff (1s doubling to a 30s
// cap, 10 attempts). It returns ErrBrokerUnavailable once the budget is
// exhausted; callers treat that as fatal.
func NewConnection(url string, log logger.Logger) (*Connection, error) {
	if url == "" {
		return nil, errors.New("rabbitmq url cannot be empty")
	}

	c := &Connection{url: url, log: log}
	if err := c.dialWithBackoff(); err != nil {
		return nil, err
	}
	log.Info("connected to RabbitMQ")
	return c, nil
}

// dialWithBackoff attempts the full dial+channel sequence with exponential
// backoff. Caller must hold no lock or the lock consistently; it only touches
// c.conn/c.channel on success.
func (c *Connection) dialWithBackoff() error {
	delay := reconnectBaseDelay
	var lastErr error

	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		conn, err := amqp.Dial(c.url)
		if err == nil {
			channel, chErr := conn.Channel()
			if chErr == nil {
				c.conn = conn
				c.channel = channel
				return nil
			}
			conn.Close()
			lastErr = fmt.Errorf("failed to create channel: %w", chErr)
		} else {
			lastErr = fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}

		c.log.WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   lastErr.Error(),
		}).Warn("RabbitMQ connect failed, retrying")

		if attempt < maxConnectAttempts {
			time.Sleep(delay)
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
		}
	}

	return fmt.Errorf("%w: %v", ErrBrokerUnavailable, lastErr)
}

// Channel returns the shared channel, reconnecting if necessary.
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil || c.conn == nil || c.conn.IsClosed() {
		c.log.Warn("channel is closed, attempting to reconnect")
		if err := c.reconnect(); err != nil {
			return nil, fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	return c.channel, nil
}

// reconnect tears down any stale state and re-dials with backoff.
func (c *Connection) reconnect() error {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if err := c.dialWithBackoff(); err != nil {
		return err
	}

	c.log.Info("reconnected to RabbitMQ")
	return nil
}

// Close closes the channel and connection gracefully.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
		c.conn = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	c.log.Info("RabbitMQ connection closed")
	return nil
}

// IsConnected checks if the connection is active.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return false
	}
	return c.channel != nil
}

// QueueDepth returns the ready-message count of a queue via a passive
// declare. Used by the queue-depth monitor.
func (c *Connection) QueueDepth(name string) (int, error) {
	ch, err := c.Channel()
	if err != nil {
		return 0, err
	}

	q, err := ch.QueueInspect(name)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue %s: %w", name, err)
	}
	return q.Messages, nil
}
