// Package email sends subscriber mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service sends HTML mail through one SMTP relay
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain text fallback
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	msg := s.buildMessage(to, subject, htmlBody)
	if err := s.send(s.server, s.auth, s.config.From, to, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

type SubscriptionData struct {
	AppName string
	Email   string
}

// SendSubscriptionConfirmation tells a new subscriber their address was added
func (s *Service) SendSubscriptionConfirmation(to string) error {
	data := SubscriptionData{
		AppName: s.appName(),
		Email:   to,
	}

	html, err := renderTemplate(subscriptionTemplate, data)
	if err != nil {
		return fmt.Errorf("render subscription template: %w", err)
	}
	subject := fmt.Sprintf("You're subscribed to %s", data.AppName)
	return s.SendHTMLEmail([]string{to}, subject, html)
}

func (s *Service) appName() string {
	if s.config.FromName != "" {
		return s.config.FromName
	}
	return "Quill"
}

func (s *Service) buildMessage(to []string, subject, htmlBody string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-quill"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var subscriptionTemplate = template.Must(template.New("subscription").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Subscribed to {{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Thanks for subscribing!</h2>

    <p>{{.Email}} will now receive an email whenever a new post is published.</p>

    <div class="footer">
        <p>If you did not subscribe, you can unsubscribe at any time from the blog's subscription page.</p>
    </div>
</body>
</html>`))
