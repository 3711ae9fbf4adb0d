// Package email sends transactional mail through Postmark.
package email

import (
	"context"
	"fmt"
	"sync"

	"github.com/keighl/postmark"
	"github.com/rs/zerolog"

	"github.com/iliyamo/acappella-workshop/internal/config"
)

// Message is one outgoing email.
type Message struct {
	To       string
	Bcc      string
	Subject  string
	HTMLBody string
	TextBody string
	Tag      string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// New returns a Postmark sender, or a mock when cfg.MockMode is set.
func New(cfg config.EmailConfig, logger zerolog.Logger) Sender {
	lg := logger.With().Str("service", "EmailService").Logger()
	if cfg.MockMode {
		return &Mock{logger: lg}
	}
	return &Postmark{client: postmark.NewClient(cfg.ServerToken, ""), from: cfg.Sender, logger: lg}
}

// Postmark sends through the Postmark API.
type Postmark struct {
	client *postmark.Client
	from   string
	logger zerolog.Logger
}

func (p *Postmark) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := p.client.SendEmail(postmark.Email{
		From:       p.from,
		To:         m.To,
		Bcc:        m.Bcc,
		Subject:    m.Subject,
		Tag:        m.Tag,
		HtmlBody:   m.HTMLBody,
		TextBody:   m.TextBody,
		TrackOpens: false,
	})
	if err != nil {
		p.logger.Error().Err(err).Str("to", m.To).Str("tag", m.Tag).Msg("Failed to send email")
		return fmt.Errorf("send email: %w", err)
	}
	if res.ErrorCode != 0 {
		p.logger.Error().Int64("code", res.ErrorCode).Str("to", m.To).Msg(res.Message)
		return fmt.Errorf("send email: postmark error %d: %s", res.ErrorCode, res.Message)
	}
	p.logger.Info().Str("to", m.To).Str("message_id", res.MessageID).Str("tag", m.Tag).Msg("Email sent")
	return nil
}

// Mock logs messages instead of sending them and keeps a copy.
type Mock struct {
	mu     sync.Mutex
	sent   []Message
	logger zerolog.Logger
}

// NewMock returns a Mock with a no-op logger.
func NewMock() *Mock { return &Mock{logger: zerolog.Nop()} }

func (m *Mock) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	m.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("Email (mock mode)")
	return nil
}

// Sent returns a copy of what was sent.
func (m *Mock) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}
