package app

import (
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
)

// mountStatic serves the prebuilt site from the public directory behind the
// session guard, plus locally stored uploads.
func (s *HTTPServer) mountStatic(r chi.Router) {
	cfg := s.service.cfg
	if prefix := strings.TrimRight(cfg.UploadURLPrefix, "/"); prefix != "" && cfg.UploadDir != "" {
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.UploadDir))))
	}
	if cfg.PublicDir == "" {
		r.NotFound(http.NotFound)
		return
	}
	guard := s.service.sessions.Guard(cfg.ProtectedPrefixes, cfg.LoginPath)
	r.Handle("/*", guard(staticFiles(cfg.PublicDir)))
}

// staticFiles serves dir, resolving extensionless paths to their .html page
// when no such file exists.
func staticFiles(dir string) http.Handler {
	root := http.Dir(dir)
	files := http.FileServer(root)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		if name != "/" && path.Ext(name) == "" && !exists(root, name) && exists(root, name+".html") {
			r.URL.Path = name + ".html"
		}
		files.ServeHTTP(w, r)
	})
}

func exists(root http.FileSystem, name string) bool {
	f, err := root.Open(name)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
