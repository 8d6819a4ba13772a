package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGuard(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(clock)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := m.Guard([]string{"/admin"}, "/admin/login")(ok)

	issued := httptest.NewRecorder()
	if err := m.Issue(issued, testUser()); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name     string
		req      *http.Request
		status   int
		location string
	}{
		{"public page", httptest.NewRequest(http.MethodGet, "/services", nil), http.StatusNoContent, ""},
		{"protected without session", httptest.NewRequest(http.MethodGet, "/admin/quotes", nil), http.StatusFound, "/admin/login?next=%2Fadmin%2Fquotes"},
		{"login page", httptest.NewRequest(http.MethodGet, "/admin/login", nil), http.StatusNoContent, ""},
		{"login page html", httptest.NewRequest(http.MethodGet, "/admin/login.html", nil), http.StatusNoContent, ""},
		{"double slash", httptest.NewRequest(http.MethodGet, "//admin/quotes", nil), http.StatusFound, "/admin/login?next=%2F%2Fadmin%2Fquotes"},
		{"dot segment", httptest.NewRequest(http.MethodGet, "/./admin/quotes", nil), http.StatusFound, ""},
		{"parent segment", httptest.NewRequest(http.MethodGet, "/x/../admin/quotes", nil), http.StatusFound, ""},
		{"login path traversal", httptest.NewRequest(http.MethodGet, "/admin/login/../quotes", nil), http.StatusFound, ""},
		{"case sensitive", httptest.NewRequest(http.MethodGet, "/Admin", nil), http.StatusNoContent, ""},
		{"protected with session", carry(t, issued, "/admin/dashboard"), http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if tt.location != "" && rec.Header().Get("Location") != tt.location {
				t.Fatalf("expected redirect to %q, got %q", tt.location, rec.Header().Get("Location"))
			}
		})
	}
}

func TestGuardRedirectsExpiredSession(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(clock)
	h := m.Guard([]string{"/admin"}, "/admin/login")(http.NotFoundHandler())

	issued := httptest.NewRecorder()
	if err := m.Issue(issued, testUser()); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	clock.now = clock.now.Add(25 * time.Hour)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, carry(t, issued, "/admin"))
	if rec.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
}

func TestRequireUser(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(clock)
	deny := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }
	h := m.RequireUser(deny)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || user.Email != "admin@example.com" {
			t.Errorf("expected user on context, got %+v", user)
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/quotes", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	issued := httptest.NewRecorder()
	if err := m.Issue(issued, testUser()); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, carry(t, issued, "/api/quotes"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
