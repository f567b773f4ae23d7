package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	orderConfirmedQueue = "order.confirmed"
	sweepCompletedQueue = "inventory.swept"
	sweepRequestQueue   = "inventory.sweep"
)

// Publisher publishes domain events to RabbitMQ.  A nil Publisher (or
// one constructed with an empty URL) is a no-op, so callers can wire
// it unconditionally and degrade gracefully when no broker is
// configured.  Deliveries are persistent and queues durable.
type Publisher struct {
	url string
	log logrus.FieldLogger
}

// NewPublisher returns a publisher for the given broker URL.  An
// empty URL disables publishing.
func NewPublisher(url string, log logrus.FieldLogger) *Publisher {
	return &Publisher{url: url, log: log}
}

func (p *Publisher) enabled() bool {
	return p != nil && p.url != ""
}

// publish dials the broker, declares the durable queue and sends one
// persistent JSON message.  Errors are logged and returned so callers
// can ignore failures without interrupting the main flow.
func (p *Publisher) publish(ctx context.Context, queueName string, payload interface{}) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		p.log.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		p.log.WithError(err).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}

// OrderConfirmed publishes an OrderConfirmedEvent.
func (p *Publisher) OrderConfirmed(ctx context.Context, ev OrderConfirmedEvent) error {
	if !p.enabled() {
		return nil
	}
	return p.publish(ctx, orderConfirmedQueue, ev)
}

// SweepCompleted publishes a SweepCompletedEvent.
func (p *Publisher) SweepCompleted(ctx context.Context, ev SweepCompletedEvent) error {
	if !p.enabled() {
		return nil
	}
	return p.publish(ctx, sweepCompletedQueue, ev)
}
