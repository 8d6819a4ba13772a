package app

import (
	"context"
	"net/http"
	"strings"

	"sitecms/api/internal/auth"
	"sitecms/api/internal/authpw"
)

// SignIn checks the administrator credential and, on success, sets the
// session cookies on w.
func (s *Service) SignIn(ctx context.Context, w http.ResponseWriter, email, password string) (auth.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return auth.User{}, validationError("email and password are required", nil)
	}
	user, err := s.auth.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		s.logger.Info("sign-in rejected", "email", email)
		return auth.User{}, err
	}
	if err := s.sessions.Issue(w, user); err != nil {
		return auth.User{}, err
	}
	s.logger.Info("admin signed in", "user_id", user.ID)
	return user, nil
}

func (s *Service) SignOut(w http.ResponseWriter) {
	s.sessions.Clear(w)
}

// CurrentUser returns the identity of r's session, clearing an expired one.
func (s *Service) CurrentUser(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	user := s.sessions.Current(w, r)
	if user == nil {
		return auth.User{}, false
	}
	return *user, true
}
