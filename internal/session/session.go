// Package session keeps the administrator's identity in client cookies. There
// is no server-side session table: the identity and its issue time travel in
// an HMAC-signed http-only cookie, and expiry is enforced when the cookie is
// read.
package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"sitecms/api/internal/auth"
)

const (
	CookieName        = "sitecms_session"
	DisplayCookieName = "sitecms_user"
	DefaultTTL        = 24 * time.Hour
)

type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSecure marks the cookies Secure; enable it behind TLS.
func WithSecure(secure bool) Option {
	return func(m *Manager) { m.secure = secure }
}

func NewManager(secret string, ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// display is the client-readable subset of the identity.
type display struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Issue sets the session cookies for user, stamped with the current time.
func (m *Manager) Issue(w http.ResponseWriter, user auth.User) error {
	token, err := auth.IssueToken(m.secret, auth.ClaimsFor(user, m.now()))
	if err != nil {
		return err
	}
	displayJSON, err := json.Marshal(display{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role})
	if err != nil {
		return err
	}

	maxAge := int(m.ttl / time.Second)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     DisplayCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(displayJSON),
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// Current returns the identity carried by r, or nil when there is none. An
// expired session is cleared on w as a side effect.
func (m *Manager) Current(w http.ResponseWriter, r *http.Request) *auth.User {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	claims, err := auth.VerifyToken(m.secret, cookie.Value, m.ttl, m.now())
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) && w != nil {
			m.Clear(w)
		}
		return nil
	}
	user := claims.User()
	return &user
}

// Clear expires every session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	for _, name := range []string{CookieName, DisplayCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: name == CookieName,
			Secure:   m.secure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
