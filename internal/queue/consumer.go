package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// SweepFunc performs an expiry sweep, optionally scoped to one event,
// and returns the number of released rows.  It decouples the consumer
// from the service layer.
type SweepFunc func(ctx context.Context, eventID *int64) (int, error)

// StartSweepConsumer connects to RabbitMQ, declares the durable
// inventory.sweep queue and triggers a sweep for every SweepRequest
// received.  It runs a reconnect loop with exponential backoff until
// ctx is cancelled.  Malformed messages are rejected without requeue
// so a bad payload cannot wedge the queue.
func StartSweepConsumer(ctx context.Context, url string, sweep SweepFunc, log logrus.FieldLogger) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.WithError(err).Warnf("sweep-consumer: dial failed; retrying in %s", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := consumeLoop(ctx, conn, sweep, log); err != nil {
			log.WithError(err).Warn("sweep-consumer: consume loop ended; reconnecting")
		}
		_ = conn.Close()
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, sweep SweepFunc, log logrus.FieldLogger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		log.WithError(err).Warn("sweep-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(sweepRequestQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(sweepRequestQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			var req SweepRequest
			if err := json.Unmarshal(d.Body, &req); err != nil {
				log.WithError(err).Warn("sweep-consumer: bad payload")
				_ = d.Nack(false, false)
				continue
			}
			released, err := sweep(ctx, req.EventID)
			if err != nil {
				log.WithError(err).Warn("sweep-consumer: sweep failed")
				_ = d.Nack(false, true)
				continue
			}
			log.WithField("released", released).Debug("sweep-consumer: sweep done")
			_ = d.Ack(false)
		}
	}
}
