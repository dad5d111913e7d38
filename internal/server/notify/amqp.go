package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the part of *amqp.Channel the dispatcher uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPDispatcher publishes each message as a persistent JSON job on a
// durable queue consumed by the mail worker.
type AMQPDispatcher struct {
	conn  *amqp.Connection
	ch    amqpChannel
	queue string
}

// DialAMQP connects to url and declares queue.
func DialAMQP(url, queue string) (*AMQPDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	d, err := newAMQPDispatcher(ch, queue)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	d.conn = conn
	return d, nil
}

func newAMQPDispatcher(ch amqpChannel, queue string) (*AMQPDispatcher, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &AMQPDispatcher{ch: ch, queue: queue}, nil
}

func (d *AMQPDispatcher) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return d.ch.PublishWithContext(ctx, "", d.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msg.Kind),
		Timestamp:    msg.CreatedAt,
		Body:         body,
	})
}

func (d *AMQPDispatcher) Close() error {
	if err := d.ch.Close(); err != nil {
		return err
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
