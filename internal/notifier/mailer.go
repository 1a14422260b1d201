package notifier

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog/log"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends through a plain SMTP relay; the platform's mail gateway
// handles auth, DKIM and rate limits.
type SMTPMailer struct {
	Addr string // host:port
	From string
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.From, to, subject, body)
	return smtp.SendMail(m.Addr, nil, m.From, []string{to}, []byte(msg))
}

// LogMailer is the dev fallback when no SMTP relay is configured.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, to, subject, body string) error {
	log.Info().Str("to", to).Str("subject", subject).Msg("notification (log only)")
	return nil
}
