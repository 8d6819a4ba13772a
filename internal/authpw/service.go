// Package authpw authenticates the single configured administrator by email
// and password. There is no user database.
package authpw

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"sitecms/api/internal/auth"
	"sitecms/api/internal/rbac"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// Credential is the configured administrator. When PasswordHash is set it is
// a bcrypt hash and Password is ignored. Role defaults to admin; unknown
// roles fall back to viewer.
type Credential struct {
	Email        string
	Password     string
	PasswordHash string
	Name         string
	Role         string
}

type Service struct {
	credential Credential
}

func NewService(credential Credential) *Service {
	return &Service{credential: credential}
}

type SignInRequest struct {
	Email    string
	Password string
}

// SignIn returns the administrator identity when email and password match
// exactly. Plain passwords are compared with ==, which is not constant time.
func (s *Service) SignIn(_ context.Context, req SignInRequest) (auth.User, error) {
	if req.Email == "" || req.Password == "" {
		return auth.User{}, ErrInvalidCredentials
	}
	if s.credential.Email == "" || req.Email != s.credential.Email {
		return auth.User{}, ErrInvalidCredentials
	}

	if s.credential.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(s.credential.PasswordHash), []byte(req.Password)); err != nil {
			return auth.User{}, ErrInvalidCredentials
		}
	} else if s.credential.Password == "" || req.Password != s.credential.Password {
		return auth.User{}, ErrInvalidCredentials
	}

	return s.Admin(), nil
}

// Admin is the identity issued to a successful sign-in.
func (s *Service) Admin() auth.User {
	name := s.credential.Name
	if name == "" {
		name = "Administrator"
	}
	role := rbac.RoleAdmin
	if s.credential.Role != "" {
		role = rbac.Normalize(s.credential.Role)
	}
	return auth.User{
		ID:          "admin",
		Email:       s.credential.Email,
		Name:        name,
		Role:        string(role),
		Permissions: rbac.Permissions(role),
	}
}

// HashPassword produces a value suitable for Credential.PasswordHash.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
