package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"sitecms/api/internal/email"
	"sitecms/api/internal/recaptcha"
	"sitecms/api/internal/siteconfig"
	"sitecms/api/internal/store"
	"sitecms/api/internal/upstream"
	"sitecms/api/internal/vapi"
)

const (
	channelSent    = "sent"
	channelSkipped = "skipped"
	channelFailed  = "failed"
)

type CaptchaOutcome struct {
	Skipped bool             `json:"skipped,omitempty"`
	Result  recaptcha.Result `json:"result"`
}

// VerifyCaptcha checks a client token. When verification is disabled the
// check is skipped and reported as passed.
func (s *Service) VerifyCaptcha(ctx context.Context, token, remoteIP string) (CaptchaOutcome, error) {
	verifier := s.recaptchaVerifier(ctx)
	if !verifier.Enabled() {
		return CaptchaOutcome{Skipped: true, Result: recaptcha.Result{Success: true}}, nil
	}
	result, err := verifier.Verify(ctx, token, remoteIP)
	if err != nil {
		return CaptchaOutcome{}, err
	}
	if !result.Success {
		return CaptchaOutcome{}, validationError("Captcha verification failed", map[string]any{"errorCodes": result.ErrorCodes})
	}
	return CaptchaOutcome{Result: result}, nil
}

func (s *Service) requireCaptcha(ctx context.Context, token, remoteIP string) error {
	_, err := s.VerifyCaptcha(ctx, token, remoteIP)
	return err
}

type EscalateInput struct {
	Reason      string `json:"reason"`
	UserMessage string `json:"userMessage"`
	UserPhone   string `json:"userPhone"`
	UserName    string `json:"userName"`
	SessionID   string `json:"sessionId"`
}

type EscalateResult struct {
	Channels map[string]string `json:"channels"`
}

// Escalate alerts the site owner over every configured channel at once. Each
// channel is best-effort: failures are logged and reported per channel but
// never fail the request.
func (s *Service) Escalate(ctx context.Context, input EscalateInput) (EscalateResult, error) {
	input.Reason = strings.TrimSpace(input.Reason)
	input.UserMessage = strings.TrimSpace(input.UserMessage)
	if input.Reason == "" && input.UserMessage == "" {
		return EscalateResult{}, validationError("reason or userMessage is required", nil)
	}
	if input.Reason == "" {
		input.Reason = "customer request"
	}

	siteName := s.siteName(ctx)
	sms := s.twilioClient(ctx)
	voice := s.vapiClient(ctx)
	mailer := s.emailService(ctx)

	var mu sync.Mutex
	channels := map[string]string{}
	record := func(channel string, err error) {
		status := channelSent
		switch {
		case errors.Is(err, upstream.ErrNotConfigured):
			status = channelSkipped
			s.logger.Info("escalation channel not configured", "channel", channel)
		case err != nil:
			status = channelFailed
			s.logger.Warn("escalation channel failed", "channel", channel, "error", err)
		}
		mu.Lock()
		channels[channel] = status
		mu.Unlock()
	}

	summary := escalationSummary(siteName, input)

	var g errgroup.Group
	g.Go(func() error {
		if !sms.IsConfigured() || sms.NotifyPhone() == "" {
			record("sms", upstream.NotConfigured("twilio"))
			return nil
		}
		_, err := sms.SendSMS(ctx, sms.NotifyPhone(), summary)
		record("sms", err)
		return nil
	})
	g.Go(func() error {
		switch {
		case voice.IsConfigured() && input.UserPhone != "":
			_, err := voice.CreateCall(ctx, vapi.CallRequest{
				CustomerNumber: input.UserPhone,
				CustomerName:   input.UserName,
				Context:        summary,
				Variables:      map[string]string{"reason": input.Reason},
			})
			record("call", err)
		case sms.IsConfigured() && sms.NotifyPhone() != "":
			_, err := sms.Call(ctx, sms.NotifyPhone(), summary)
			record("call", err)
		default:
			record("call", upstream.NotConfigured("voice"))
		}
		return nil
	})
	g.Go(func() error {
		if !mailer.IsConfigured() {
			record("email", upstream.NotConfigured("email"))
			return nil
		}
		record("email", mailer.SendEscalationNotification(ctx, email.EscalationNotice{
			SiteName:    siteName,
			Reason:      input.Reason,
			UserMessage: input.UserMessage,
			UserName:    input.UserName,
			UserPhone:   input.UserPhone,
		}))
		return nil
	})
	_ = g.Wait()

	s.markEscalated(ctx, strings.TrimSpace(input.SessionID))
	s.logger.Info("chat escalated", "reason", input.Reason, "sms", channels["sms"], "call", channels["call"], "email", channels["email"])
	return EscalateResult{Channels: channels}, nil
}

func escalationSummary(siteName string, input EscalateInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s escalation: %s.", siteName, input.Reason)
	if input.UserName != "" {
		fmt.Fprintf(&b, " Customer %s.", input.UserName)
	}
	if input.UserPhone != "" {
		fmt.Fprintf(&b, " Phone %s.", input.UserPhone)
	}
	if input.UserMessage != "" {
		fmt.Fprintf(&b, " Message: %s", input.UserMessage)
	}
	return b.String()
}

type TriggerCallInput struct {
	QuoteID      string `json:"quoteId"`
	PhoneNumber  string `json:"phoneNumber"`
	CustomerName string `json:"customerName"`
	Context      string `json:"context"`
}

type TriggerCallResult struct {
	CallID  string `json:"callId"`
	Status  string `json:"status"`
	QuoteID string `json:"quoteId,omitempty"`
}

// TriggerCall starts an outbound assistant call, optionally seeded with a
// stored quote's details.
func (s *Service) TriggerCall(ctx context.Context, input TriggerCallInput) (TriggerCallResult, error) {
	phone := strings.TrimSpace(input.PhoneNumber)
	name := strings.TrimSpace(input.CustomerName)
	vars := map[string]string{"company": s.siteName(ctx)}
	parts := []string{}
	if extra := strings.TrimSpace(input.Context); extra != "" {
		parts = append(parts, extra)
	}

	quoteID := strings.TrimSpace(input.QuoteID)
	if quoteID != "" {
		quote, err := s.quotes().Find(ctx, quoteID)
		if errors.Is(err, store.ErrNotFound) {
			return TriggerCallResult{}, notFound("Quote not found")
		}
		if err != nil {
			return TriggerCallResult{}, err
		}
		if phone == "" {
			phone = quote.String("phone")
		}
		if name == "" {
			name = quote.String("name")
		}
		parts = append(parts, quoteContext(quote))
		vars["quoteId"] = quoteID
	}
	if phone == "" {
		return TriggerCallResult{}, validationError("phoneNumber is required", map[string]any{"field": "phoneNumber"})
	}
	if name != "" {
		vars["customerName"] = name
	}

	client := s.vapiClient(ctx)
	if !client.IsConfigured() {
		return TriggerCallResult{}, domainError(http.StatusInternalServerError, "CONFIG_MISSING", "Voice calls are not configured", map[string]any{"service": "vapi"})
	}
	call, err := client.CreateCall(ctx, vapi.CallRequest{
		CustomerNumber: phone,
		CustomerName:   name,
		Context:        strings.Join(parts, "\n"),
		Variables:      vars,
	})
	if err != nil {
		return TriggerCallResult{}, err
	}
	s.logger.Info("call triggered", "call_id", call.ID, "quote_id", quoteID)
	return TriggerCallResult{CallID: call.ID, Status: call.Status, QuoteID: quoteID}, nil
}

func quoteContext(quote store.Record) string {
	keys := []string{"projectType", "budget", "timeline", "address", "message", "status", "notes"}
	lines := []string{"Quote request from " + fmt.Sprint(quote["name"])}
	for _, key := range keys {
		value, ok := quote[key]
		if !ok || value == nil {
			continue
		}
		if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
			lines = append(lines, key+": "+text)
		}
	}
	return strings.Join(lines, "\n")
}

// PublicSite is the configuration a browser is allowed to see.
type PublicSite struct {
	Company   siteconfig.Company `json:"company"`
	Recaptcha struct {
		Enabled bool   `json:"enabled"`
		SiteKey string `json:"siteKey,omitempty"`
	} `json:"recaptcha"`
}

func (s *Service) PublicSite(ctx context.Context) PublicSite {
	var out PublicSite
	out.Company = s.site.Company(ctx)
	captcha := s.site.Recaptcha(ctx)
	out.Recaptcha.Enabled = captcha.Enabled
	out.Recaptcha.SiteKey = captcha.SiteKey
	return out
}

// SiteConfig returns the effective configuration with secrets masked.
func (s *Service) SiteConfig(ctx context.Context) siteconfig.SiteConfig {
	return siteconfig.Masked(s.site.Snapshot(ctx))
}

func (s *Service) SaveSiteConfig(ctx context.Context, cfg siteconfig.SiteConfig) (siteconfig.SiteConfig, error) {
	saved, err := s.site.Save(ctx, cfg)
	if err != nil {
		return siteconfig.SiteConfig{}, storageError(err)
	}
	return siteconfig.Masked(saved), nil
}
