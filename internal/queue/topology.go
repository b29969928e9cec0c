package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange names. Two logical domains share the one broker connection:
// inbox (send/inbound/status/notify/webhook) and drip (scheduled sends).
const (
	ExchangeInbox    = "inbox"
	ExchangeInboxDLX = "inbox.dlx"
	ExchangeDrip     = "drip"
	ExchangeDripDLX  = "drip.dlx"
)

// Queue names
const (
	QueueInboxSend    = "inbox.send"
	QueueInboxInbound = "inbox.inbound"
	QueueInboxStatus  = "inbox.status"
	QueueInboxNotify  = "inbox.notify"
	QueueInboxWebhook = "inbox.webhook"
	QueueInboxFailed  = "inbox.failed"
	QueueDripMessages = "drip.messages"
	QueueDripDead     = "drip.dead"
)

// Routing keys
const (
	KeySend       = "send"
	KeyInbound    = "inbound"
	KeyStatus     = "status"
	KeyNotify     = "notify"
	KeyWebhook    = "webhook"
	KeyDripSend   = "drip.send"
	KeyDripFailed = "drip.failed"
	KeyInboxDead  = "dead"
)

const (
	ttl1Hour = 60 * 60 * 1000
	ttl24H   = 24 * 60 * 60 * 1000
	ttl7Days = 7 * 24 * 60 * 60 * 1000
)

// MonitoredQueues lists every queue the depth monitor watches.
var MonitoredQueues = []string{
	QueueInboxSend,
	QueueInboxInbound,
	QueueInboxStatus,
	QueueInboxNotify,
	QueueInboxWebhook,
	QueueDripMessages,
}

type queueSpec struct {
	name     string
	exchange string
	key      string
	args     amqp.Table
}

// queueArgs returns the declare arguments for a known queue. Kept as a
// function so tests can assert TTL and DLX wiring per queue.
func queueArgs(name string) amqp.Table {
	switch name {
	case QueueInboxSend, QueueInboxInbound, QueueInboxStatus, QueueInboxWebhook:
		return amqp.Table{
			"x-message-ttl":             int32(ttl24H),
			"x-dead-letter-exchange":    ExchangeInboxDLX,
			"x-dead-letter-routing-key": KeyInboxDead,
		}
	case QueueDripMessages:
		return amqp.Table{
			"x-message-ttl":             int32(ttl1Hour),
			"x-dead-letter-exchange":    ExchangeDripDLX,
			"x-dead-letter-routing-key": KeyDripFailed,
		}
	case QueueInboxFailed, QueueDripDead:
		return amqp.Table{
			"x-message-ttl": int32(ttl7Days),
		}
	default:
		return nil
	}
}

var topology = []queueSpec{
	{QueueInboxSend, ExchangeInbox, KeySend, queueArgs(QueueInboxSend)},
	{QueueInboxInbound, ExchangeInbox, KeyInbound, queueArgs(QueueInboxInbound)},
	{QueueInboxStatus, ExchangeInbox, KeyStatus, queueArgs(QueueInboxStatus)},
	{QueueInboxNotify, ExchangeInbox, KeyNotify, nil},
	{QueueInboxWebhook, ExchangeInbox, KeyWebhook, queueArgs(QueueInboxWebhook)},
	{QueueInboxFailed, ExchangeInboxDLX, KeyInboxDead, queueArgs(QueueInboxFailed)},
	{QueueDripMessages, ExchangeDrip, KeyDripSend, queueArgs(QueueDripMessages)},
	{QueueDripDead, ExchangeDripDLX, KeyDripFailed, queueArgs(QueueDripDead)},
}

// DeclareTopology declares both domains' exchanges, queues, and bindings.
// Everything is durable; declarations are idempotent so every process runs
// this at startup before consuming.
func DeclareTopology(conn *Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	for _, ex := range []string{ExchangeInbox, ExchangeInboxDLX, ExchangeDrip, ExchangeDripDLX} {
		if err := ch.ExchangeDeclare(
			ex,
			"direct",
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex, err)
		}
	}

	for _, spec := range topology {
		if _, err := ch.QueueDeclare(
			spec.name,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			spec.args,
		); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", spec.name, err)
		}

		if err := ch.QueueBind(spec.name, spec.key, spec.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", spec.name, err)
		}
	}

	return nil
}
