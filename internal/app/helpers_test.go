package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sitecms/api/internal/auth"
	"sitecms/api/internal/authpw"
	"sitecms/api/internal/config"
	"sitecms/api/internal/gitrepo"
	"sitecms/api/internal/rbac"
	"sitecms/api/internal/session"
	"sitecms/api/internal/siteconfig"
	"sitecms/api/internal/store"
	"sitecms/api/internal/upload"
)

const (
	testAdminEmail    = "admin@example.com"
	testAdminPassword = "correct-horse"
)

type testOptions struct {
	site      siteconfig.SiteConfig
	endpoints Endpoints
}

type testEnv struct {
	handler   http.Handler
	service   *Service
	store     *store.Store
	uploadDir string
	publicDir string
}

func newTestEnv(t *testing.T, opts testOptions) *testEnv {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend, err := store.NewFileBackend(filepath.Join(root, "data"))
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	st := store.New(backend, logger)

	cfg := config.Config{
		PublicDir:         filepath.Join(root, "public"),
		UploadDir:         filepath.Join(root, "uploads"),
		UploadURLPrefix:   "/uploads",
		CORSOrigin:        "*",
		ProtectedPrefixes: []string{"/admin"},
		LoginPath:         "/admin/login",
	}
	if err := os.MkdirAll(filepath.Join(cfg.PublicDir, "admin"), 0o755); err != nil {
		t.Fatalf("mkdir public: %v", err)
	}

	uploads, err := upload.NewRegistry("local",
		upload.NewLocalBackend(cfg.UploadDir, cfg.UploadURLPrefix),
		upload.NewBase64Backend(),
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	svc := New(Deps{
		Config:    cfg,
		Store:     st,
		Sessions:  session.NewManager("test-secret", 24*time.Hour),
		Auth:      authpw.NewService(authpw.Credential{Email: testAdminEmail, Password: testAdminPassword, Name: "Site Admin"}),
		Site:      siteconfig.NewProvider(st, opts.site, logger),
		Uploads:   uploads,
		Git:       gitrepo.New(filepath.Join(root, "content-repo")),
		Logger:    logger,
		Endpoints: opts.endpoints,
	})
	return &testEnv{
		handler:   NewHTTPServer(svc, cfg.CORSOrigin).Handler(),
		service:   svc,
		store:     st,
		uploadDir: cfg.UploadDir,
		publicDir: cfg.PublicDir,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// login signs in as the administrator and returns the session cookies.
func (e *testEnv) login(t *testing.T) []*http.Cookie {
	t.Helper()
	rec := e.do(jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    testAdminEmail,
		"password": testAdminPassword,
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body.String())
	}
	return rec.Result().Cookies()
}

// sessionFor issues session cookies for an arbitrary role.
func (e *testEnv) sessionFor(t *testing.T, role rbac.Role) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	user := auth.User{ID: "u-" + string(role), Email: string(role) + "@example.com", Role: string(role), Permissions: rbac.Permissions(role)}
	if err := e.service.sessions.Issue(rec, user); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return rec.Result().Cookies()
}

func withCookies(req *http.Request, cookies []*http.Cookie) *http.Request {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, path, fileName, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

// expectError checks a failure envelope.
func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d body=%s", rec.Code, status, rec.Body.String())
	}
	body := decodeResponse(t, rec)
	if body["success"] != false || body["code"] != code {
		t.Fatalf("unexpected error envelope %v, want code %s", body, code)
	}
	return body
}

func expectSuccess(t *testing.T, rec *httptest.ResponseRecorder, status int) map[string]any {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d body=%s", rec.Code, status, rec.Body.String())
	}
	body := decodeResponse(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
	return body
}
