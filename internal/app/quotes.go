package app

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"sitecms/api/internal/email"
	"sitecms/api/internal/store"
)

var quoteStatuses = map[string]struct{}{
	"new":       {},
	"contacted": {},
	"quoted":    {},
	"won":       {},
	"lost":      {},
}

func (s *Service) ListQuotes(ctx context.Context) []store.Record {
	return sortNewestFirst(s.quotes().LoadAll(ctx), "timestamp")
}

type CreateQuoteInput struct {
	Fields       store.Record
	CaptchaToken string
	RemoteIP     string
}

// CreateQuote stores a visitor's quote request and notifies the site owner
// by email when email is configured.
func (s *Service) CreateQuote(ctx context.Context, input CreateQuoteInput) (store.Record, error) {
	fields := input.Fields
	if fields == nil {
		fields = store.Record{}
	}
	name := strings.TrimSpace(fields.String("name"))
	address := strings.TrimSpace(fields.String("email"))

	missing := []string{}
	if name == "" {
		missing = append(missing, "name")
	}
	if address == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return nil, validationError("Missing required fields", map[string]any{"fields": missing})
	}
	if _, err := mail.ParseAddress(address); err != nil {
		return nil, validationError("Invalid email address", map[string]any{"field": "email"})
	}

	if err := s.requireCaptcha(ctx, input.CaptchaToken, input.RemoteIP); err != nil {
		return nil, err
	}

	record := store.Record{}
	for key, value := range fields {
		switch key {
		case "id", "status", "timestamp", "updatedAt", "notes", "captchaToken":
			continue
		}
		record[key] = value
	}
	record["name"] = name
	record["email"] = address
	record["status"] = "new"
	record["timestamp"] = s.timestamp()

	stored, err := s.quotes().AppendOne(ctx, record)
	if err != nil {
		return nil, writeFailure(err)
	}

	s.notifyQuote(ctx, stored)
	return stored, nil
}

func (s *Service) notifyQuote(ctx context.Context, quote store.Record) {
	mailer := s.emailService(ctx)
	if !mailer.IsConfigured() {
		s.logger.Info("email not configured, skipping quote notification", "quote_id", quote.ID())
		return
	}
	details := map[string]string{}
	for key, value := range quote {
		switch key {
		case "id", "name", "email", "phone", "status", "timestamp":
			continue
		}
		if text := fmt.Sprint(value); text != "" {
			details[key] = text
		}
	}
	err := mailer.SendQuoteNotification(ctx, email.QuoteNotice{
		SiteName: s.siteName(ctx),
		QuoteID:  quote.ID(),
		Name:     quote.String("name"),
		Email:    quote.String("email"),
		Phone:    quote.String("phone"),
		Fields:   details,
	})
	if err != nil {
		s.logger.Warn("quote notification failed", "quote_id", quote.ID(), "error", err)
	}
}

type UpdateQuoteInput struct {
	QuoteID string  `json:"quoteId"`
	Status  *string `json:"status"`
	Notes   *string `json:"notes"`
}

func (s *Service) UpdateQuote(ctx context.Context, input UpdateQuoteInput) (store.Record, error) {
	id := strings.TrimSpace(input.QuoteID)
	if id == "" || (input.Status == nil && input.Notes == nil) {
		return nil, validationError("quoteId and status or notes are required", nil)
	}

	patch := store.Record{}
	if input.Status != nil {
		status := strings.TrimSpace(*input.Status)
		if status == "" {
			return nil, validationError("status must not be empty", nil)
		}
		if _, known := quoteStatuses[status]; !known {
			s.logger.Debug("non-standard quote status", "quote_id", id, "status", status)
		}
		patch["status"] = status
	}
	if input.Notes != nil {
		patch["notes"] = *input.Notes
	}

	updated, err := s.quotes().UpdateOne(ctx, id, patch)
	if err != nil {
		return nil, writeFailure(err)
	}
	return updated, nil
}

func (s *Service) DeleteQuote(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return validationError("id is required", nil)
	}
	return writeFailure(s.quotes().DeleteOne(ctx, id))
}
