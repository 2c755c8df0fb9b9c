// Package mailer sends the plain-text mails of the password reset flow.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/nickk-eng/Serialboxd/internal/logging"
)

var ErrInvalidHeader = errors.New("header contains a line break")

// sendMail is a seam for tests.
var sendMail = smtp.SendMail

// SMTPSender delivers mail through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

func NewSMTPSender(host string, port int, user, password, from string) *SMTPSender {
	var a smtp.Auth
	if user != "" {
		a = smtp.PlainAuth("", user, password, host)
	}
	return &SMTPSender{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		auth: a,
		from: from,
	}
}

func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	msg, err := buildMessage(s.from, to, subject, body, time.Now())
	if err != nil {
		return err
	}
	if err := sendMail(s.addr, s.auth, s.from, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, body string, date time.Time) ([]byte, error) {
	for _, h := range []string{from, to, subject} {
		if strings.ContainsAny(h, "\r\n") {
			return nil, ErrInvalidHeader
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String()), nil
}

// LogSender writes mail to the log instead of sending it. Used when no SMTP
// host is configured.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(l logging.Logger) *LogSender {
	return &LogSender{log: l.With("module", "mailer")}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.log.Info(ctx, "mail not sent, smtp disabled", "to", to, "subject", subject, "body", body)
	return nil
}
