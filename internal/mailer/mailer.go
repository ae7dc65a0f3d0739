// Package mailer delivers account emails.
package mailer

import (
	"context"
	"log/slog"
	"net/smtp"

	"github.com/jordan-wright/email"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTP sends plain-text mail through a relay.
type SMTP struct {
	Addr string // host:port
	From string
	Auth smtp.Auth
}

// NewSMTP builds a sender using PLAIN auth when user is set.
func NewSMTP(addr, host, user, password, from string) *SMTP {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}
	return &SMTP{Addr: addr, From: from, Auth: auth}
}

func (s *SMTP) Send(_ context.Context, to, subject, body string) error {
	e := email.NewEmail()
	e.From = s.From
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)
	return e.Send(s.Addr, s.Auth)
}

// Log writes messages to the logger instead of sending them.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Send(_ context.Context, to, subject, body string) error {
	l.Logger.Info("mail", "to", to, "subject", subject, "body", body)
	return nil
}
