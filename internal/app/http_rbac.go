package app

import (
	"net/http"

	"sitecms/api/internal/auth"
	"sitecms/api/internal/rbac"
	"sitecms/api/internal/session"
)

// allow admits requests whose session role may perform action. Requests
// without a session get 401, those with an insufficient role 403.
func (s *HTTPServer) allow(action rbac.Action) func(http.Handler) http.Handler {
	requireUser := s.service.sessions.RequireUser(unauthorized)
	return func(next http.Handler) http.Handler {
		return requireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _ := userFromRequest(r)
			if !rbac.Can(rbac.Normalize(user.Role), action) {
				s.forbid(w, r, user, action)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// permitted resolves the session user and checks action, writing the
// rejection when it fails.
func (s *HTTPServer) permitted(w http.ResponseWriter, r *http.Request, action rbac.Action) (auth.User, bool) {
	user, ok := s.service.CurrentUser(w, r)
	if !ok {
		unauthorized(w, r)
		return auth.User{}, false
	}
	if !rbac.Can(rbac.Normalize(user.Role), action) {
		s.forbid(w, r, user, action)
		return auth.User{}, false
	}
	return user, true
}

func unauthorized(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
}

// forbid writes a 403 Forbidden response and logs the denial
func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, user auth.User, action rbac.Action) {
	s.service.logger.Warn("permission denied",
		"request_id", requestIDFrom(r.Context()),
		"user_id", user.ID,
		"role", user.Role,
		"action", string(action),
		"path", r.URL.Path,
	)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func userFromRequest(r *http.Request) (auth.User, bool) {
	return session.UserFromContext(r.Context())
}
