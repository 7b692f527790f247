// Package mail sends transactional email, currently only account
// confirmation messages.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	gomail "gopkg.in/gomail.v2"
)

// Message is a rendered email ready to send.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Enabled() bool
}

// SMTPConfig describes the outbound SMTP relay.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	DisplayName string
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	name   string
}

// NewSMTPSender validates the config and builds a sender. The connection is
// dialed per message, matching the low volume of confirmation mail.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host required")
	}
	if cfg.Port <= 0 {
		return nil, errors.New("smtp port required")
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = cfg.Username
	}
	if from == "" {
		return nil, errors.New("smtp from address required")
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
		name:   cfg.DisplayName,
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	if s.name != "" {
		m.SetHeader("From", m.FormatAddress(s.from, s.name))
	} else {
		m.SetHeader("From", s.from)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPSender) Enabled() bool { return true }

// NoopSender drops messages. Used when no SMTP relay is configured.
type NoopSender struct{}

func (NoopSender) Send(context.Context, Message) error { return nil }

func (NoopSender) Enabled() bool { return false }

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<html>
<body>
<p>Hi {{.Username}},</p>
<p>Please confirm your email address by following the link below:</p>
<p><a href="{{.ConfirmURL}}">Confirm email</a></p>
<p>If you did not sign up, you can ignore this message.</p>
</body>
</html>
`))

// ConfirmationEmail renders the account confirmation message for the given
// signed token. baseURL is the externally reachable origin of the API.
func ConfirmationEmail(username, email, baseURL, token string) (Message, error) {
	confirmURL := strings.TrimRight(baseURL, "/") + "/api/auth/confirm/" + token
	var body bytes.Buffer
	err := confirmationTemplate.Execute(&body, struct {
		Username   string
		ConfirmURL string
	}{Username: username, ConfirmURL: confirmURL})
	if err != nil {
		return Message{}, fmt.Errorf("render confirmation email: %w", err)
	}
	return Message{
		To:      email,
		Subject: "Confirm your email",
		HTML:    body.String(),
	}, nil
}
