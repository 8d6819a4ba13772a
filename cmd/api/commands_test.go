package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"sitecms/api/internal/config"
	"sitecms/api/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestHashPasswordCommand(t *testing.T) {
	out, err := execute(t, "hash-password", "correct-horse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hash := strings.TrimSpace(out)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct-horse")); err != nil {
		t.Fatalf("hash %q does not verify: %v", hash, err)
	}
}

func TestHashPasswordCommand_MissingArgs(t *testing.T) {
	if _, err := execute(t, "hash-password"); err == nil {
		t.Fatal("expected error for missing password")
	}
}

func TestCollectionDump(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SITECMS_CONFIG_FILE", "")
	t.Setenv("STORE_BACKEND", "file")
	t.Setenv("SITECMS_DATA_DIR", dir)

	backend, err := store.NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	st := store.New(backend, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := st.Collection("quotes").AppendOne(context.Background(), store.Record{"name": "Ada", "status": "new"}); err != nil {
		t.Fatalf("AppendOne() error = %v", err)
	}

	out, err := execute(t, "collection", "dump", "quotes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var records []map[string]any
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(records) != 1 || records[0]["name"] != "Ada" || records[0]["id"] == nil {
		t.Fatalf("unexpected records %v", records)
	}

	out, err = execute(t, "collection", "dump", "chat-history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("missing collection should dump as [], got %q", out)
	}
}

func TestCollectionDump_BadName(t *testing.T) {
	t.Setenv("SITECMS_CONFIG_FILE", "")
	t.Setenv("STORE_BACKEND", "file")
	t.Setenv("SITECMS_DATA_DIR", t.TempDir())
	if _, err := execute(t, "collection", "dump", "../etc"); err == nil {
		t.Fatal("expected error for invalid collection name")
	}
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	_, err := openStore(context.Background(), config.Config{StoreBackend: "mongo"}, slog.Default())
	if err == nil || !strings.Contains(err.Error(), "unknown store backend") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func TestSiteFallback(t *testing.T) {
	site := siteFallback(config.Config{
		RecaptchaSecret:  "secret",
		RecaptchaSiteKey: "site",
		NotifyEmail:      "owner@example.com",
		SMTPFrom:         "noreply@example.com",
	})
	if !site.Recaptcha.Enabled || site.Recaptcha.SiteKey != "site" {
		t.Fatalf("recaptcha not enabled from env: %+v", site.Recaptcha)
	}
	if site.Email.NotifyTo != "owner@example.com" || site.Email.From != "noreply@example.com" {
		t.Fatalf("unexpected email settings %+v", site.Email)
	}
	if siteFallback(config.Config{}).Recaptcha.Enabled {
		t.Fatal("recaptcha enabled without a secret")
	}
}
