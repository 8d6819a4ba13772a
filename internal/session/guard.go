package session

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Guard redirects requests whose path starts with one of prefixes to
// loginPath unless they carry a valid session. The login page itself is
// always let through. Matching is case-sensitive and runs on the cleaned
// path, the same one a file server resolves.
func (m *Manager) Guard(prefixes []string, loginPath string) func(http.Handler) http.Handler {
	protected := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		if prefix != "" {
			protected = append(protected, prefix)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cleaned := path.Clean("/" + r.URL.Path)
			if !isProtected(cleaned, protected) || isLoginPath(cleaned, loginPath) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Current(w, r) == nil {
				target := loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isProtected(cleaned string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(cleaned, prefix) || strings.HasPrefix(cleaned+"/", prefix) {
			return true
		}
	}
	return false
}

func isLoginPath(cleaned, loginPath string) bool {
	if loginPath == "" {
		return false
	}
	loginPath = path.Clean("/" + loginPath)
	return cleaned == loginPath || cleaned == loginPath+".html"
}

// RequireUser answers 401 through deny when there is no valid session and
// otherwise stores the user on the request context.
func (m *Manager) RequireUser(deny func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := m.Current(w, r)
			if user == nil {
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), *user)))
		})
	}
}
