package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/pulsestack/pulse-sentinel/internal/models"
)

// SMTPSender delivers notifications as plain-text email via an SMTP relay
// with STARTTLS.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPSender creates an email transport. Authentication is skipped when
// username is empty.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	if port <= 0 {
		port = 587
	}
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Send composes and submits the message. net/smtp has no per-call context,
// so the deadline is only checked before dialing; the caller's send timeout
// bounds the goroutine, not the dial.
func (s *SMTPSender) Send(ctx context.Context, n models.Notification) error {
	if s.host == "" {
		return fmt.Errorf("smtp host not configured")
	}
	if len(n.Recipients) == 0 {
		return fmt.Errorf("notification has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(n.Recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", n.Subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(n.Body)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if err := smtp.SendMail(addr, auth, s.from, n.Recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// Close is a no-op; connections are per-send.
func (s *SMTPSender) Close() error { return nil }
