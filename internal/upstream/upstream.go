// Package upstream holds the error vocabulary shared by third-party integrations.
package upstream

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when an integration has no credentials.
var ErrNotConfigured = errors.New("integration not configured")

// Error is a non-success answer from a third-party API.
type Error struct {
	Service string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Service, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Message)
}

// NotConfigured wraps ErrNotConfigured with the service name.
func NotConfigured(service string) error {
	return fmt.Errorf("%s: %w", service, ErrNotConfigured)
}
