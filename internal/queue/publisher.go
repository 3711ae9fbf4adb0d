package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher sends events to RabbitMQ.  Each publish opens its own
// connection; payment volume is a handful per minute at peak.
type Publisher struct {
	url    string
	logger zerolog.Logger
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, logger zerolog.Logger) *Publisher {
	return &Publisher{url: url, logger: logger.With().Str("service", "QueuePublisher").Logger()}
}

// PublishRegistrationPaid publishes ev to the registration.paid queue as
// a persistent JSON message.  Errors are logged and returned so the
// caller can choose to ignore them.
func (p *Publisher) PublishRegistrationPaid(ctx context.Context, ev RegistrationPaidEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.logger.Warn().Err(err).Msg("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Warn().Err(err).Msg("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(RegistrationPaidQueue, true, false, false, false, nil); err != nil {
		p.logger.Warn().Err(err).Msg("rabbitmq: queue declare failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.SessionID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	// default exchange, routing key = queue name
	if err := ch.PublishWithContext(ctx, "", RegistrationPaidQueue, false, false, pub); err != nil {
		p.logger.Warn().Err(err).Str("session_id", ev.SessionID).Msg("rabbitmq: publish failed")
		return err
	}
	return nil
}
