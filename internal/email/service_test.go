package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/resend/resend-go/v2"

	"sitecms/api/internal/upstream"
)

func TestSettingsIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		expected bool
	}{
		{
			name:     "empty settings",
			settings: Settings{},
			expected: false,
		},
		{
			name:     "resend without from",
			settings: Settings{ResendAPIKey: "re_123"},
			expected: false,
		},
		{
			name:     "resend",
			settings: Settings{ResendAPIKey: "re_123", From: "site@example.com"},
			expected: true,
		},
		{
			name:     "smtp missing port",
			settings: Settings{SMTPHost: "smtp.example.com", From: "site@example.com"},
			expected: false,
		},
		{
			name:     "smtp",
			settings: Settings{SMTPHost: "smtp.example.com", SMTPPort: "587", From: "site@example.com"},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewService(tt.settings).IsConfigured(); got != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSendNotConfigured(t *testing.T) {
	err := NewService(Settings{}).Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "hi"})
	if !errors.Is(err, upstream.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendViaResend(t *testing.T) {
	var got resend.SendEmailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/emails" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer re_123" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	svc := NewService(Settings{ResendAPIKey: "re_123", From: "site@example.com", FromName: "Acme Builders"}, WithResendURL(srv.URL))
	if err := svc.Send(context.Background(), Message{To: []string{"owner@example.com"}, Subject: "Hello", HTML: "<p>hi</p>"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got.From != "Acme Builders <site@example.com>" || got.Subject != "Hello" || len(got.To) != 1 || got.Html != "<p>hi</p>" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestSendViaResendSurfacesUpstreamMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"domain not verified"}`))
	}))
	defer srv.Close()

	svc := NewService(Settings{ResendAPIKey: "re_123", From: "site@example.com"}, WithResendURL(srv.URL))
	err := svc.Send(context.Background(), Message{To: []string{"owner@example.com"}, Subject: "Hello"})
	var upErr *upstream.Error
	if !errors.As(err, &upErr) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if upErr.Service != "resend" || !strings.Contains(upErr.Message, "domain not verified") {
		t.Fatalf("unexpected upstream error %+v", upErr)
	}
}

func TestSendViaSMTP(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	fake := func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}
	svc := NewService(Settings{SMTPHost: "smtp.example.com", SMTPPort: "2525", From: "site@example.com"}, withSendMail(fake))

	err := svc.Send(context.Background(), Message{To: []string{"owner@example.com"}, Subject: "Quote", HTML: "<b>new</b>", Text: "new"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotAddr != "smtp.example.com:2525" || len(gotTo) != 1 {
		t.Fatalf("unexpected smtp call %q %v", gotAddr, gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: Quote") || !strings.Contains(gotMsg, "multipart/alternative") {
		t.Fatalf("unexpected message:\n%s", gotMsg)
	}
}

func TestSendQuoteNotification(t *testing.T) {
	var gotMsg string
	fake := func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotMsg = string(msg)
		if to[0] != "owner@example.com" {
			t.Errorf("expected notification to owner, got %v", to)
		}
		return nil
	}
	svc := NewService(Settings{SMTPHost: "smtp.example.com", SMTPPort: "25", From: "site@example.com", NotifyTo: "owner@example.com"}, withSendMail(fake))

	err := svc.SendQuoteNotification(context.Background(), QuoteNotice{
		SiteName: "Acme Builders",
		QuoteID:  "q_1",
		Name:     "Dana",
		Email:    "dana@example.com",
		Fields:   map[string]string{"projectType": "Kitchen remodel", "budget": "<50k"},
	})
	if err != nil {
		t.Fatalf("SendQuoteNotification() error = %v", err)
	}
	for _, want := range []string{"Dana", "Kitchen remodel", "&lt;50k", "q_1"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message should contain %q", want)
		}
	}
}

func TestRenderEscalationTemplate(t *testing.T) {
	html, err := renderTemplate(escalationEmailTemplate, EscalationNotice{
		SiteName:    "Acme Builders",
		Reason:      "pricing",
		UserMessage: "Can someone call me?",
		UserPhone:   "+15550100",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	// html/template escapes "+" in text.
	if !strings.Contains(html, "pricing") || !strings.Contains(html, "&#43;15550100") {
		t.Errorf("template should contain reason and phone, got %s", html)
	}
	if strings.Contains(html, "<strong>Name:</strong>") {
		t.Error("template should omit empty name")
	}
}
