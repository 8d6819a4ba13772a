// Package store keeps named collections of JSON records and singleton JSON
// documents on a pluggable Backend. Each mutation loads the whole collection,
// changes it in memory and writes the whole collection back. There is no
// locking: two concurrent writers to one collection can lose an update.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sitecms/api/internal/util"
)

type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Store)

// WithClock overrides the clock used for updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(backend Backend, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return util.NewID("") },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collection returns a handle on the named collection. Nothing is read until
// an operation runs.
func (s *Store) Collection(name string) *Collection {
	return &Collection{store: s, name: name}
}

// LoadDocument decodes the singleton document stored under name into target.
// It returns ErrNoData when the document was never saved.
func (s *Store) LoadDocument(ctx context.Context, name string, target any) error {
	if err := validateName(name); err != nil {
		return err
	}
	data, err := s.backend.Read(ctx, name)
	if err != nil {
		return err
	}
	record, err := decodeDocument(data)
	if err != nil {
		return fmt.Errorf("document %s: %w", name, err)
	}
	return FromRecord(record, target)
}

// SaveDocument replaces the singleton document stored under name.
func (s *Store) SaveDocument(ctx context.Context, name string, value any) error {
	if err := validateName(name); err != nil {
		return err
	}
	data, err := encodeJSON(value)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", name, err)
	}
	if err := s.backend.Write(ctx, name, data); err != nil {
		return fmt.Errorf("write document %s: %w", name, err)
	}
	return nil
}

// Ping checks backends that hold a connection. The file backend always
// answers nil.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.backend.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func decodeDocument(data []byte) (Record, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var record Record
	if err := decoder.Decode(&record); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if record == nil {
		return nil, errors.New("document must be a JSON object")
	}
	return record, nil
}
