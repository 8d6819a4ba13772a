// Package upload persists uploaded files and hands back a public URL. The
// storage variant is picked once at startup and held in a Registry.
package upload

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"sitecms/api/internal/util"
)

const (
	LocalMaxSize  int64 = 10 << 20
	Base64MaxSize int64 = 5 << 20
)

var (
	ErrTooLarge       = errors.New("file too large")
	ErrEmptyFile      = errors.New("file is empty")
	ErrUnknownBackend = errors.New("unknown upload backend")
)

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type Stored struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	Backend     string `json:"backend"`
}

// Backend stores file bytes somewhere publicly reachable.
type Backend interface {
	Name() string
	Store(ctx context.Context, file File) (Stored, error)
	// Owns reports whether url was produced by this backend.
	Owns(url string) bool
	// Remove deletes the object behind url. Removing something that is
	// already gone is not an error.
	Remove(ctx context.Context, url string) error
}

func checkSize(file File, limit int64) error {
	size := int64(len(file.Data))
	if size == 0 {
		return ErrEmptyFile
	}
	if limit > 0 && size > limit {
		return fmt.Errorf("%w: %d bytes exceeds %d MB", ErrTooLarge, size, limit>>20)
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// objectName builds a unique, filesystem-safe name that keeps the original
// extension.
func objectName(original string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(original, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-.")
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), util.RandomHex(3), base)
}

func contentTypeOr(file File) string {
	if file.ContentType != "" {
		return file.ContentType
	}
	return "application/octet-stream"
}

type Registry struct {
	backends    map[string]Backend
	defaultName string
}

// NewRegistry holds backends by name. The default must be one of them.
func NewRegistry(defaultName string, backends ...Backend) (*Registry, error) {
	r := &Registry{backends: make(map[string]Backend, len(backends)), defaultName: defaultName}
	for _, b := range backends {
		r.backends[b.Name()] = b
	}
	if _, ok := r.backends[defaultName]; !ok {
		return nil, fmt.Errorf("%w: default %q is not configured", ErrUnknownBackend, defaultName)
	}
	return r, nil
}

func (r *Registry) Default() Backend {
	return r.backends[r.defaultName]
}

func (r *Registry) Get(name string) (Backend, error) {
	if name == "" {
		return r.Default(), nil
	}
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return b, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove deletes url through whichever backend produced it. URLs no backend
// recognises are ignored.
func (r *Registry) Remove(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	for _, name := range r.Names() {
		b := r.backends[name]
		if b.Owns(url) {
			return b.Remove(ctx, url)
		}
	}
	return nil
}
