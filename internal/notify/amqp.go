package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const notificationQueue = "order_notifications"

// AMQPSink publishes notifications to a durable RabbitMQ queue consumed by
// the mailer worker.
type AMQPSink struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPSink(url string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	_, err = ch.QueueDeclare(notificationQueue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", notificationQueue, err)
	}
	return &AMQPSink{conn: conn, channel: ch}, nil
}

func (s *AMQPSink) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	err = s.channel.PublishWithContext(ctx, "", notificationQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	if err := s.channel.Close(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}
