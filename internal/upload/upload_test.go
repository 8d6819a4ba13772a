package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestObjectNameSanitizes(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	tests := []struct {
		in     string
		suffix string
	}{
		{"site plan.pdf", "-site-plan.pdf"},
		{"../../etc/passwd", "-passwd"},
		{`C:\Users\me\photo.JPG`, "-photo.JPG"},
		{"", "-file"},
	}
	pattern := regexp.MustCompile(`^1700000000000-[0-9a-f]{6}-`)
	for _, tt := range tests {
		got := objectName(tt.in, now)
		if !pattern.MatchString(got) || !strings.HasSuffix(got, tt.suffix) {
			t.Errorf("objectName(%q) = %q", tt.in, got)
		}
	}
}

func TestLocalBackendStoreAndRemove(t *testing.T) {
	dir := t.TempDir()
	b := NewLocalBackend(dir, "/uploads")
	ctx := context.Background()

	stored, err := b.Store(ctx, File{Name: "brochure.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !strings.HasPrefix(stored.URL, "/uploads/") || stored.Size != 8 || stored.Backend != "local" {
		t.Fatalf("unexpected stored %+v", stored)
	}
	if _, err := os.Stat(filepath.Join(dir, stored.Key)); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
	if !b.Owns(stored.URL) {
		t.Fatal("expected local backend to own its URL")
	}

	if err := b.Remove(ctx, stored.URL); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := b.Remove(ctx, stored.URL); err != nil {
		t.Fatalf("second Remove() should ignore missing file, got %v", err)
	}
}

func TestLocalBackendRejects(t *testing.T) {
	b := NewLocalBackend(t.TempDir(), "/uploads")
	b.maxSize = 4

	if _, err := b.Store(context.Background(), File{Name: "big.bin", Data: []byte("12345")}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := b.Store(context.Background(), File{Name: "empty.bin"}); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected ErrEmptyFile, got %v", err)
	}
}

func TestBase64Backend(t *testing.T) {
	b := NewBase64Backend()
	stored, err := b.Store(context.Background(), File{Name: "dot.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})
	if stored.URL != want {
		t.Fatalf("URL = %q, want %q", stored.URL, want)
	}

	b.maxSize = 2
	if _, err := b.Store(context.Background(), File{Data: []byte("abc")}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	local := NewLocalBackend(t.TempDir(), "/uploads")
	r, err := NewRegistry("local", local, NewBase64Backend())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if r.Default().Name() != "local" {
		t.Fatal("expected local default")
	}
	if b, err := r.Get("base64"); err != nil || b.Name() != "base64" {
		t.Fatalf("Get(base64) = %v, %v", b, err)
	}
	if _, err := r.Get("s3"); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
	if got := strings.Join(r.Names(), ","); got != "base64,local" {
		t.Fatalf("Names() = %s", got)
	}

	if _, err := NewRegistry("blob", local); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected unknown default to fail, got %v", err)
	}
}

func TestRegistryRemoveDispatchesByURL(t *testing.T) {
	dir := t.TempDir()
	local := NewLocalBackend(dir, "/uploads")
	r, err := NewRegistry("local", local, NewBase64Backend())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	ctx := context.Background()
	stored, err := local.Store(ctx, File{Name: "a.txt", Data: []byte("a")})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := r.Remove(ctx, stored.URL); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, stored.Key)); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, got %v", err)
	}
	for _, url := range []string{"", "data:text/plain;base64,YQ==", "https://elsewhere.example/x"} {
		if err := r.Remove(ctx, url); err != nil {
			t.Fatalf("Remove(%q) error = %v", url, err)
		}
	}
}
