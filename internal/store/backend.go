package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotFound is returned when no record carries the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrNoData is returned by a Backend when nothing was ever written under a name.
	ErrNoData = errors.New("no data stored")
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Backend persists the serialized bytes of a named collection or document.
// Every write replaces the previous bytes entirely.
type Backend interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	Close() error
}

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}
