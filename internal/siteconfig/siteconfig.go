// Package siteconfig serves the singleton site configuration document. The
// stored document is read once and cached until Save or Invalidate; empty
// fields fall back to the values supplied from the process environment.
package siteconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sitecms/api/internal/email"
	"sitecms/api/internal/recaptcha"
	"sitecms/api/internal/store"
	"sitecms/api/internal/twilio"
	"sitecms/api/internal/vapi"
)

const (
	DocumentName = "config"
	Mask         = "********"
)

type Company struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type SiteConfig struct {
	Company   Company            `json:"company"`
	Email     email.Settings     `json:"email"`
	Twilio    twilio.Settings    `json:"twilio"`
	VAPI      vapi.Settings      `json:"vapi"`
	Recaptcha recaptcha.Settings `json:"recaptcha"`
}

type Provider struct {
	store    *store.Store
	fallback SiteConfig
	logger   *slog.Logger

	mu     sync.RWMutex
	cached *SiteConfig
}

func NewProvider(st *store.Store, fallback SiteConfig, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{store: st, fallback: fallback, logger: logger}
}

// Snapshot returns the effective configuration. A missing or unreadable
// document yields the fallback values.
func (p *Provider) Snapshot(ctx context.Context) SiteConfig {
	p.mu.RLock()
	if p.cached != nil {
		cfg := *p.cached
		p.mu.RUnlock()
		return cfg
	}
	p.mu.RUnlock()

	cfg := p.load(ctx)

	p.mu.Lock()
	p.cached = &cfg
	p.mu.Unlock()
	return cfg
}

func (p *Provider) load(ctx context.Context) SiteConfig {
	var stored SiteConfig
	err := p.store.LoadDocument(ctx, DocumentName, &stored)
	switch {
	case errors.Is(err, store.ErrNoData):
		p.logger.Debug("site config not saved yet, using environment")
		return p.fallback
	case err != nil:
		p.logger.Warn("site config unreadable, using environment", "error", err)
		return p.fallback
	}
	return withFallback(stored, p.fallback)
}

// Stored returns the saved document without environment fallbacks.
func (p *Provider) Stored(ctx context.Context) (SiteConfig, error) {
	var stored SiteConfig
	err := p.store.LoadDocument(ctx, DocumentName, &stored)
	if errors.Is(err, store.ErrNoData) {
		return SiteConfig{}, nil
	}
	return stored, err
}

// Save replaces the stored document. Secret fields sent back as Mask keep
// their stored value, so nothing is saved when the stored document cannot be
// read.
func (p *Provider) Save(ctx context.Context, cfg SiteConfig) (SiteConfig, error) {
	current, err := p.Stored(ctx)
	if err != nil {
		return SiteConfig{}, fmt.Errorf("read site config before save: %w", err)
	}
	cfg = unmask(cfg, current)
	if err := p.store.SaveDocument(ctx, DocumentName, cfg); err != nil {
		return SiteConfig{}, fmt.Errorf("save site config: %w", err)
	}
	p.Invalidate()
	return cfg, nil
}

func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

func (p *Provider) Email(ctx context.Context) email.Settings {
	return p.Snapshot(ctx).Email
}

func (p *Provider) Twilio(ctx context.Context) twilio.Settings {
	return p.Snapshot(ctx).Twilio
}

func (p *Provider) VAPI(ctx context.Context) vapi.Settings {
	return p.Snapshot(ctx).VAPI
}

func (p *Provider) Recaptcha(ctx context.Context) recaptcha.Settings {
	return p.Snapshot(ctx).Recaptcha
}

func (p *Provider) Company(ctx context.Context) Company {
	return p.Snapshot(ctx).Company
}

// withFallback fills empty string fields of stored from fallback. Booleans
// and numbers are taken from stored as saved.
func withFallback(stored, fallback SiteConfig) SiteConfig {
	out := stored
	or(&out.Company.Name, fallback.Company.Name)
	or(&out.Company.Phone, fallback.Company.Phone)
	or(&out.Company.Email, fallback.Company.Email)
	or(&out.Company.Address, fallback.Company.Address)

	or(&out.Email.ResendAPIKey, fallback.Email.ResendAPIKey)
	or(&out.Email.SMTPHost, fallback.Email.SMTPHost)
	or(&out.Email.SMTPPort, fallback.Email.SMTPPort)
	or(&out.Email.SMTPUsername, fallback.Email.SMTPUsername)
	or(&out.Email.SMTPPassword, fallback.Email.SMTPPassword)
	or(&out.Email.From, fallback.Email.From)
	or(&out.Email.FromName, fallback.Email.FromName)
	or(&out.Email.NotifyTo, fallback.Email.NotifyTo)

	or(&out.Twilio.AccountSID, fallback.Twilio.AccountSID)
	or(&out.Twilio.AuthToken, fallback.Twilio.AuthToken)
	or(&out.Twilio.FromNumber, fallback.Twilio.FromNumber)
	or(&out.Twilio.NotifyPhone, fallback.Twilio.NotifyPhone)

	or(&out.VAPI.APIKey, fallback.VAPI.APIKey)
	or(&out.VAPI.AssistantID, fallback.VAPI.AssistantID)
	or(&out.VAPI.PhoneNumberID, fallback.VAPI.PhoneNumberID)

	or(&out.Recaptcha.SiteKey, fallback.Recaptcha.SiteKey)
	or(&out.Recaptcha.SecretKey, fallback.Recaptcha.SecretKey)
	return out
}

func or(field *string, fallback string) {
	if *field == "" {
		*field = fallback
	}
}

// secrets lists the secret fields of cfg.
func secrets(cfg *SiteConfig) []*string {
	return []*string{
		&cfg.Email.ResendAPIKey,
		&cfg.Email.SMTPPassword,
		&cfg.Twilio.AuthToken,
		&cfg.VAPI.APIKey,
		&cfg.Recaptcha.SecretKey,
	}
}

// Masked replaces every non-empty secret with Mask.
func Masked(cfg SiteConfig) SiteConfig {
	for _, field := range secrets(&cfg) {
		if *field != "" {
			*field = Mask
		}
	}
	return cfg
}

func unmask(incoming, current SiteConfig) SiteConfig {
	in := secrets(&incoming)
	cur := secrets(&current)
	for i := range in {
		if *in[i] == Mask {
			*in[i] = *cur[i]
		}
	}
	return incoming
}
