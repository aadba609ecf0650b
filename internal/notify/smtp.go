package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"gdprengine/internal/logger"
)

// SMTPSender is the real EmailSender, a direct port of the original's
// smtplib.SMTP/starttls/login/sendmail sequence onto stdlib net/smtp — no
// corpus go.mod pulls in a third-party mail client, so net/smtp is the one
// library-free exception here (see DESIGN.md).
type SMTPSender struct {
	host     string
	port     int
	user     string
	password string
	from     string
}

func NewSMTPSender(host string, port int, user, password, from string) *SMTPSender {
	return &SMTPSender{host: host, port: port, user: user, password: password, from: from}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, html string) error {
	if s.password == "" {
		logger.GetLogger().WithField("to", to).WithField("subject", subject).Warn("smtp password not configured, skipping send")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	auth := smtp.PlainAuth("", s.user, s.password, s.host)

	var msg strings.Builder
	msg.WriteString("From: " + s.from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(html)

	if err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	logger.WithContext(ctx).WithField("to", to).WithField("subject", subject).Info("email sent")
	return nil
}

// NoOpSender discards every message; used in tests and environments with no
// SMTP credentials configured.
type NoOpSender struct{}

func (NoOpSender) Send(ctx context.Context, to, subject, html string) error { return nil }
