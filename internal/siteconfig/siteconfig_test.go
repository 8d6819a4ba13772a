package siteconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sitecms/api/internal/email"
	"sitecms/api/internal/store"
	"sitecms/api/internal/twilio"
)

func newProvider(t *testing.T, fallback SiteConfig) (*Provider, *store.FileBackend) {
	t.Helper()
	backend, err := store.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	return NewProvider(store.New(backend, nil), fallback, nil), backend
}

func TestSnapshotWithoutDocumentUsesFallback(t *testing.T) {
	fallback := SiteConfig{Email: email.Settings{SMTPHost: "smtp.env.example", From: "env@example.com"}}
	p, _ := newProvider(t, fallback)

	got := p.Email(context.Background())
	if got.SMTPHost != "smtp.env.example" || got.From != "env@example.com" {
		t.Fatalf("unexpected email settings %+v", got)
	}
}

func TestSnapshotPrefersStoredFields(t *testing.T) {
	ctx := context.Background()
	fallback := SiteConfig{Twilio: twilio.Settings{AccountSID: "AC-env", AuthToken: "env-token", FromNumber: "+1000"}}
	p, _ := newProvider(t, fallback)

	if _, err := p.Save(ctx, SiteConfig{Twilio: twilio.Settings{FromNumber: "+2000"}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got := p.Twilio(ctx)
	if got.FromNumber != "+2000" || got.AccountSID != "AC-env" || got.AuthToken != "env-token" {
		t.Fatalf("unexpected merged settings %+v", got)
	}
}

func TestSnapshotIsCachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	p, backend := newProvider(t, SiteConfig{})

	if _, err := p.Save(ctx, SiteConfig{Company: Company{Name: "Acme"}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if p.Company(ctx).Name != "Acme" {
		t.Fatal("expected saved company name")
	}

	// An out-of-band edit is invisible until the snapshot is dropped.
	path := backend.Path(DocumentName)
	if err := os.WriteFile(path, []byte(`{"company":{"name":"Edited"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if p.Company(ctx).Name != "Acme" {
		t.Fatal("expected cached snapshot")
	}
	p.Invalidate()
	if p.Company(ctx).Name != "Edited" {
		t.Fatal("expected fresh snapshot after invalidate")
	}
}

func TestUnreadableDocumentFallsBack(t *testing.T) {
	p, backend := newProvider(t, SiteConfig{Company: Company{Name: "Fallback"}})
	if err := os.WriteFile(filepath.Join(filepath.Dir(backend.Path(DocumentName)), DocumentName+".json"), []byte("{oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := p.Company(context.Background()).Name; got != "Fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestMaskedAndSaveKeepsMaskedSecrets(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t, SiteConfig{})

	saved, err := p.Save(ctx, SiteConfig{Email: email.Settings{ResendAPIKey: "re_secret", From: "a@example.com"}})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	masked := Masked(saved)
	if masked.Email.ResendAPIKey != Mask || masked.Email.From != "a@example.com" {
		t.Fatalf("unexpected masked config %+v", masked.Email)
	}
	if masked.Email.SMTPPassword != "" {
		t.Fatal("empty secrets must stay empty")
	}

	masked.Email.From = "b@example.com"
	if _, err := p.Save(ctx, masked); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got := p.Email(ctx)
	if got.ResendAPIKey != "re_secret" || got.From != "b@example.com" {
		t.Fatalf("expected secret preserved, got %+v", got)
	}
}

func TestSaveAbortsWhenStoredDocumentUnreadable(t *testing.T) {
	ctx := context.Background()
	p, backend := newProvider(t, SiteConfig{})
	path := backend.Path(DocumentName)
	corrupt := []byte(`{"email":{"resendApiKey":"re_secret"`)
	if err := os.WriteFile(path, corrupt, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := p.Save(ctx, SiteConfig{Email: email.Settings{ResendAPIKey: Mask, From: "b@example.com"}}); err == nil {
		t.Fatal("expected error saving over an unreadable document")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != string(corrupt) {
		t.Fatalf("stored document overwritten: %s", data)
	}
}

func TestContentRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t, SiteConfig{})

	empty, err := p.LoadContent(ctx)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty content, got %v %v", empty, err)
	}
	if err := p.SaveContent(ctx, Content{"hero": map[string]any{"title": "Build with us"}}); err != nil {
		t.Fatalf("SaveContent() error = %v", err)
	}
	got, err := p.LoadContent(ctx)
	if err != nil {
		t.Fatalf("LoadContent() error = %v", err)
	}
	hero, _ := got["hero"].(map[string]any)
	if hero["title"] != "Build with us" {
		t.Fatalf("unexpected content %v", got)
	}
}
