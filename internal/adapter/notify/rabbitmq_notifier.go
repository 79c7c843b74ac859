package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

const AlertQueue = "inventory.alerts"

// RabbitMQNotifier publishes stock alerts to a durable queue for the
// notification service to consume. The inventory path treats delivery as
// fire-and-forget; an unreachable broker only costs a log line upstream.
type RabbitMQNotifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQNotifier(url string) (*RabbitMQNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		AlertQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	return &RabbitMQNotifier{conn: conn, channel: channel}, nil
}

func (n *RabbitMQNotifier) Notify(ctx context.Context, alert domain.StockAlert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	err = n.channel.PublishWithContext(ctx,
		"",         // exchange
		AlertQueue, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

func (n *RabbitMQNotifier) Close() {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}
