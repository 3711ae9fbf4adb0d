// Package queue contains the background consumer that listens to the
// registration.paid queue and hands each event to a handler (the
// confirmation email sender in production).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Handler processes one event.  A returned error schedules a retry.
type Handler func(ctx context.Context, ev RegistrationPaidEvent) error

// MaxDeliveryAttempts bounds how often one event is handed to the handler
// before it is parked on RegistrationDeadQueue.
const MaxDeliveryAttempts = 5

const (
	attemptsHeader  = "x-attempts"
	lastErrorHeader = "x-last-error"
)

// ErrMalformed marks a body that can never be handled; it goes straight
// to the dead queue.
var ErrMalformed = errors.New("malformed event")

// retryBackoff is multiplied by the attempt number before a failed event
// is put back on the queue.
var retryBackoff = 2 * time.Second

// publisher is the slice of *amqp.Channel the consumer re-publishes with.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// StartRegistrationConsumer connects to RabbitMQ, declares the
// registration.paid queue (durable) and feeds deliveries to h.  It runs
// a reconnect loop with exponential backoff and returns only when ctx
// is cancelled.  A message h fails on is re-published with an attempt
// counter; after MaxDeliveryAttempts, or at once when the body is
// malformed, it moves to RegistrationDeadQueue.
func StartRegistrationConsumer(ctx context.Context, url string, h Handler, logger zerolog.Logger) error {
	lg := logger.With().Str("service", "RegistrationConsumer").Logger()
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			lg.Warn().Err(err).Dur("retry_in", backoff).Msg("Failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, h, lg)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lg.Warn().Err(err).Msg("Consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, h Handler, lg zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		lg.Warn().Err(err).Msg("Set QoS failed")
	}
	if _, err := ch.QueueDeclare(RegistrationPaidQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if _, err := ch.QueueDeclare(RegistrationDeadQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("dead queue declare: %w", err)
	}
	msgs, err := ch.Consume(RegistrationPaidQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			settle(ctx, ch, d, HandleDelivery(ctx, d.Body, h), lg)
		}
	}
}

// settle acks d once its outcome is durable: handled, re-published for
// another attempt, or parked on the dead queue.  If the re-publish
// itself fails the delivery is requeued by the broker.
func settle(ctx context.Context, pub publisher, d amqp.Delivery, herr error, lg zerolog.Logger) {
	if herr == nil {
		_ = d.Ack(false)
		return
	}
	attempt := attempts(d.Headers) + 1
	mlg := lg.With().Str("message_id", d.MessageId).Int("attempt", attempt).Logger()

	target := RegistrationPaidQueue
	if errors.Is(herr, ErrMalformed) || attempt >= MaxDeliveryAttempts {
		target = RegistrationDeadQueue
		mlg.Error().Err(herr).Msg("Giving up on message")
	} else {
		mlg.Warn().Err(herr).Msg("Handle message failed; retrying")
		if !sleep(ctx, retryBackoff*time.Duration(attempt)) {
			_ = d.Nack(false, true)
			return
		}
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[attemptsHeader] = int32(attempt)
	headers[lastErrorHeader] = herr.Error()
	msg := amqp.Publishing{
		Headers:      headers,
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    d.Timestamp,
		Body:         d.Body,
	}
	if err := pub.PublishWithContext(ctx, "", target, false, false, msg); err != nil {
		mlg.Error().Err(err).Str("queue", target).Msg("Re-publish failed; requeueing")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// attempts reads the attempt counter a previous settle stamped on the
// message.
func attempts(h amqp.Table) int {
	switch v := h[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}

// HandleDelivery decodes body and runs h on it.
func HandleDelivery(ctx context.Context, body []byte, h Handler) error {
	var ev RegistrationPaidEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ev.SessionID == "" || ev.Email == "" {
		return fmt.Errorf("%w: missing session id or email", ErrMalformed)
	}
	return h(ctx, ev)
}
