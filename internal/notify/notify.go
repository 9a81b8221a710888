package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"
)

// CodeSender delivers a one-time login code out of band.
type CodeSender interface {
	SendCode(ctx context.Context, email, code string, validFor time.Duration) error
}

const (
	subject  = "Your support login verification code"
	textBody = "Your verification code is: %s. Valid for %s."
)

var htmlBody = template.Must(template.New("otp").Parse(`<div style="font-family: sans-serif; padding: 20px;">
<h2>Login verification</h2>
<p>Your verification code is:</p>
<h1 style="color: #4f46e5; letter-spacing: 5px;">{{.Code}}</h1>
<p>Valid for {{.ValidFor}}.</p>
</div>`))

// SMTPSender sends codes through an authenticated SMTP relay.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{host: host, port: port, username: username, password: password, from: from}
}

func (s *SMTPSender) SendCode(ctx context.Context, email, code string, validFor time.Duration) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("notify: from address: %w", err)
	}
	if err := msg.To(email); err != nil {
		return fmt.Errorf("notify: to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(textBody, code, humanDuration(validFor)))

	var html bytes.Buffer
	if err := htmlBody.Execute(&html, struct{ Code, ValidFor string }{code, humanDuration(validFor)}); err != nil {
		return fmt.Errorf("notify: render: %w", err)
	}
	msg.AddAlternativeString(mail.TypeTextHTML, html.String())

	client, err := mail.NewClient(s.host,
		mail.WithPort(s.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.username),
		mail.WithPassword(s.password),
		mail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("notify: smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: send to %s: %w", email, err)
	}
	return nil
}

// LogSender writes codes to the log instead of delivering them. Development only.
type LogSender struct{}

func (LogSender) SendCode(_ context.Context, email, code string, validFor time.Duration) error {
	log.Warn().Str("email", email).Str("code", code).Dur("valid_for", validFor).Msg("otp: SMTP not configured, code logged instead of sent")
	return nil
}

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
