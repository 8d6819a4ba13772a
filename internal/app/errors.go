package app

import (
	"errors"
	"fmt"
	"net/http"

	"sitecms/api/internal/auth"
	"sitecms/api/internal/authpw"
	"sitecms/api/internal/gitrepo"
	"sitecms/api/internal/store"
	"sitecms/api/internal/upload"
	"sitecms/api/internal/upstream"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, details)
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

// storageError marks a failed collection write.
func storageError(err error) error {
	return fmt.Errorf("%w: %w", errStorage, err)
}

var errStorage = errors.New("storage write failed")

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, gitrepo.ErrNoHistory) {
		return http.StatusNotFound, "NOT_FOUND", "No revisions recorded", nil
	}
	if errors.Is(err, gitrepo.ErrUnknownRevision) {
		return http.StatusNotFound, "NOT_FOUND", "Revision not found", nil
	}
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, upload.ErrTooLarge) || errors.Is(err, upload.ErrEmptyFile) || errors.Is(err, upload.ErrUnknownBackend) {
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil
	}
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		details := map[string]any{"service": upErr.Service, "message": upErr.Message}
		if upErr.Status != 0 {
			details["status"] = upErr.Status
		}
		return http.StatusInternalServerError, "UPSTREAM_ERROR", upErr.Message, details
	}
	if errors.Is(err, upstream.ErrNotConfigured) {
		return http.StatusInternalServerError, "CONFIG_MISSING", err.Error(), nil
	}
	if errors.Is(err, errStorage) {
		return http.StatusInternalServerError, "STORAGE_ERROR", "Could not save changes", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
