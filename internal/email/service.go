// Package email sends notification mail through the Resend HTTP API when an
// API key is configured, and through SMTP otherwise.
package email

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	"sitecms/api/internal/upstream"
)

// Settings is the email section of the site configuration.
type Settings struct {
	ResendAPIKey string `json:"resendApiKey,omitempty"`
	SMTPHost     string `json:"smtpHost,omitempty"`
	SMTPPort     string `json:"smtpPort,omitempty"`
	SMTPUsername string `json:"smtpUsername,omitempty"`
	SMTPPassword string `json:"smtpPassword,omitempty"`
	From         string `json:"from,omitempty"`
	FromName     string `json:"fromName,omitempty"`
	NotifyTo     string `json:"notifyTo,omitempty"`
}

func (s Settings) resendConfigured() bool {
	return s.ResendAPIKey != "" && s.From != ""
}

func (s Settings) smtpConfigured() bool {
	return s.SMTPHost != "" && s.SMTPPort != "" && s.From != ""
}

// IsConfigured reports whether any transport can deliver mail.
func (s Settings) IsConfigured() bool {
	return s.resendConfigured() || s.smtpConfigured()
}

type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	settings  Settings
	client    *http.Client
	resendURL *url.URL
	sendMail  sendMailFunc
}

type Option func(*Service)

func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.client = client }
}

// WithResendURL points the Resend client at another API base URL.
func WithResendURL(baseURL string) Option {
	return func(s *Service) {
		if u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/"); err == nil {
			s.resendURL = u
		}
	}
}

func withSendMail(fn sendMailFunc) Option {
	return func(s *Service) { s.sendMail = fn }
}

func NewService(settings Settings, opts ...Option) *Service {
	s := &Service{
		settings: settings,
		client:   &http.Client{Timeout: 15 * time.Second},
		sendMail: smtp.SendMail,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) IsConfigured() bool {
	return s.settings.IsConfigured()
}

// NotifyTo is the admin inbox for site notifications, falling back to From.
func (s *Service) NotifyTo() string {
	if s.settings.NotifyTo != "" {
		return s.settings.NotifyTo
	}
	return s.settings.From
}

func (s *Service) from() string {
	if s.settings.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.settings.FromName, s.settings.From)
	}
	return s.settings.From
}

func (s *Service) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("email: no recipients")
	}
	switch {
	case s.settings.resendConfigured():
		return s.sendResend(ctx, msg)
	case s.settings.smtpConfigured():
		return s.sendSMTP(msg)
	default:
		return upstream.NotConfigured("email")
	}
}

func (s *Service) sendResend(ctx context.Context, msg Message) error {
	client := resend.NewCustomClient(s.client, s.settings.ResendAPIKey)
	if s.resendURL != nil {
		client.BaseURL = s.resendURL
	}
	_, err := client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from(),
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return &upstream.Error{Service: "resend", Message: strings.TrimPrefix(err.Error(), "[ERROR]: ")}
	}
	return nil
}

func (s *Service) sendSMTP(msg Message) error {
	var auth smtp.Auth
	if s.settings.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.settings.SMTPUsername, s.settings.SMTPPassword, s.settings.SMTPHost)
	}
	server := s.settings.SMTPHost + ":" + s.settings.SMTPPort
	if err := s.sendMail(server, auth, s.settings.From, msg.To, s.buildMIME(msg)); err != nil {
		return &upstream.Error{Service: "smtp", Message: err.Error()}
	}
	return nil
}

func (s *Service) buildMIME(msg Message) []byte {
	text := msg.Text
	if text == "" {
		text = "Please view this email in an HTML-capable email client."
	}
	if msg.HTML == "" {
		return []byte(fmt.Sprintf(
			"To: %s\r\n"+
				"From: %s\r\n"+
				"Subject: %s\r\n"+
				"Content-Type: text/plain; charset=UTF-8\r\n"+
				"\r\n"+
				"%s",
			strings.Join(msg.To, ", "),
			s.from(),
			msg.Subject,
			text,
		))
	}

	boundary := "boundary-sitecms"

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "From: %s\r\n", s.from())
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&buf, "\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&buf, "\r\n")
	fmt.Fprintf(&buf, "%s\r\n", text)
	fmt.Fprintf(&buf, "\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&buf, "\r\n")
	fmt.Fprintf(&buf, "%s\r\n", msg.HTML)
	fmt.Fprintf(&buf, "\r\n")
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}
