package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"sitecms/api/internal/rbac"
	"sitecms/api/internal/search"
	"sitecms/api/internal/siteconfig"
	"sitecms/api/internal/store"
	"sitecms/api/internal/upload"
)

const (
	maxJSONBodyBytes      = 1 << 20
	maxMultipartBodyBytes = 12 << 20
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware, s.recoverPanics)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.withCORS)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		})

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		})
		r.Get("/ready", s.handleReady)
		r.Get("/site", func(w http.ResponseWriter, r *http.Request) {
			writeSuccess(w, http.StatusOK, map[string]any{"site": s.service.PublicSite(r.Context())})
		})

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/auth/me", s.handleMe)

		r.With(s.allow(rbac.ActionRead)).Get("/quotes", s.handleListQuotes)
		r.Post("/quotes", s.handleCreateQuote)
		r.With(s.allow(rbac.ActionWrite)).Put("/quotes", s.handleUpdateQuote)
		r.With(s.allow(rbac.ActionDelete)).Delete("/quotes", s.handleDeleteQuote)

		r.With(s.allow(rbac.ActionRead)).Get("/chat-history", s.handleListChats)
		r.Post("/chat-history", s.handleSaveChat)

		r.Get("/knowledge-base", s.handleListKnowledge)
		r.With(s.allow(rbac.ActionWrite)).Post("/knowledge-base", s.handleAddKnowledge)
		r.With(s.allow(rbac.ActionDelete)).Delete("/knowledge-base", s.handleDeleteKnowledge)

		r.Post("/escalate", s.handleEscalate)
		r.With(s.allow(rbac.ActionWrite)).Post("/call-trigger", s.handleCallTrigger)
		r.Post("/captcha-verify", s.handleCaptchaVerify)

		r.With(s.allow(rbac.ActionWrite)).Post("/upload", s.handleUpload)
		r.With(s.allow(rbac.ActionWrite)).Post("/upload/{backend}", s.handleUpload)

		r.Get("/content", s.handleGetContent)
		r.Route("/admin", func(r chi.Router) {
			r.With(s.allow(rbac.ActionSettings)).Get("/config", s.handleGetConfig)
			r.With(s.allow(rbac.ActionSettings)).Put("/config", s.handleSaveConfig)
			r.With(s.allow(rbac.ActionWrite)).Put("/content", s.handleSaveContent)
			r.With(s.allow(rbac.ActionRead)).Get("/content/history", s.handleContentHistory)
			r.With(s.allow(rbac.ActionWrite)).Post("/content/restore", s.handleRestoreContent)
		})
	})

	s.mountStatic(r)
	return r
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"store": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["store"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, err := s.service.SignIn(r.Context(), w, body.Email, body.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": user})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.service.SignOut(w)
	writeSuccess(w, http.StatusOK, nil)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.service.CurrentUser(w, r)
	if !ok {
		unauthorized(w, r)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": user})
}

func (s *HTTPServer) handleListQuotes(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"quotes": s.service.ListQuotes(r.Context())})
}

// handleCreateQuote accepts public quote requests. A body naming an existing
// quoteId is an admin edit and is routed to the update path.
func (s *HTTPServer) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	var body store.Record
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if quoteID := body.String("quoteId"); quoteID != "" {
		if _, ok := s.permitted(w, r, rbac.ActionWrite); !ok {
			return
		}
		quote, err := s.service.UpdateQuote(r.Context(), updateInputFromRecord(body))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"quote": quote})
		return
	}

	quote, err := s.service.CreateQuote(r.Context(), CreateQuoteInput{
		Fields:       body,
		CaptchaToken: body.String("captchaToken"),
		RemoteIP:     clientIP(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"quote": quote})
}

func updateInputFromRecord(body store.Record) UpdateQuoteInput {
	input := UpdateQuoteInput{QuoteID: body.String("quoteId")}
	if status, ok := body["status"].(string); ok {
		input.Status = &status
	}
	if notes, ok := body["notes"].(string); ok {
		input.Notes = &notes
	}
	return input
}

func (s *HTTPServer) handleUpdateQuote(w http.ResponseWriter, r *http.Request) {
	var body UpdateQuoteInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	quote, err := s.service.UpdateQuote(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"quote": quote})
}

func (s *HTTPServer) handleDeleteQuote(w http.ResponseWriter, r *http.Request) {
	id, err := idFromRequest(w, r, "id", "quoteId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.DeleteQuote(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (s *HTTPServer) handleListChats(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"sessions": s.service.ListChatSessions(r.Context())})
}

func (s *HTTPServer) handleSaveChat(w http.ResponseWriter, r *http.Request) {
	var body store.Record
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SaveChatSession(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"session": session})
}

func (s *HTTPServer) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	category := strings.TrimSpace(query.Get("category"))
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		writeSuccess(w, http.StatusOK, map[string]any{"documents": s.service.ListKnowledge(r.Context(), category)})
		return
	}

	limit, offset := 20, 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer", nil)
			return
		}
		limit = min(parsed, 100)
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be a non-negative integer", nil)
			return
		}
		offset = parsed
	}

	resp := s.service.SearchKnowledge(r.Context(), search.Query{Text: text, Category: category, Limit: limit, Offset: offset})
	writeSuccess(w, http.StatusOK, map[string]any{
		"results": resp.Results,
		"total":   resp.Total,
		"query":   resp.Query,
		"engine":  resp.Engine,
	})
}

func (s *HTTPServer) handleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	file, form, ok := readUpload(w, r)
	if !ok {
		return
	}
	doc, err := s.service.AddKnowledge(r.Context(), AddKnowledgeInput{
		Title:       form.Get("title"),
		Description: form.Get("description"),
		Category:    form.Get("category"),
		Backend:     form.Get("backend"),
		File:        file,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"document": doc})
}

func (s *HTTPServer) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	id, err := idFromRequest(w, r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.DeleteKnowledge(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (s *HTTPServer) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var body EscalateInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Escalate(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"channels": result.Channels})
}

func (s *HTTPServer) handleCallTrigger(w http.ResponseWriter, r *http.Request) {
	var body TriggerCallInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.TriggerCall(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"callId":  result.CallID,
		"status":  result.Status,
		"quoteId": result.QuoteID,
	})
}

func (s *HTTPServer) handleCaptchaVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	outcome, err := s.service.VerifyCaptcha(r.Context(), body.Token, clientIP(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	payload := map[string]any{}
	if outcome.Skipped {
		payload["skipped"] = true
	}
	if outcome.Result.Score != nil {
		payload["score"] = *outcome.Result.Score
	}
	if outcome.Result.Action != "" {
		payload["action"] = outcome.Result.Action
	}
	writeSuccess(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, form, ok := readUpload(w, r)
	if !ok {
		return
	}
	backend := chi.URLParam(r, "backend")
	if backend == "" {
		backend = form.Get("backend")
	}
	stored, err := s.service.Upload(r.Context(), backend, file)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"url":         stored.URL,
		"key":         stored.Key,
		"size":        stored.Size,
		"contentType": stored.ContentType,
		"backend":     stored.Backend,
	})
}

func (s *HTTPServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"config":         s.service.SiteConfig(r.Context()),
		"uploadBackends": s.service.UploadBackends(),
	})
}

func (s *HTTPServer) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var body siteconfig.SiteConfig
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	saved, err := s.service.SaveSiteConfig(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"config": saved})
}

func (s *HTTPServer) handleGetContent(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"content": s.service.Content(r.Context())})
}

func (s *HTTPServer) handleSaveContent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content siteconfig.Content `json:"content"`
		Message string             `json:"message"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, _ := userFromRequest(r)
	result, err := s.service.SaveContent(r.Context(), user, body.Content, body.Message)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"content":  result.Content,
		"revision": result.Revision,
		"changed":  result.Changed,
	})
}

func (s *HTTPServer) handleContentHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}
	revisions, err := s.service.ContentHistory(limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"revisions": revisions})
}

func (s *HTTPServer) handleRestoreContent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Hash string `json:"hash"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, _ := userFromRequest(r)
	result, err := s.service.RestoreContent(r.Context(), user, body.Hash)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"content":  result.Content,
		"revision": result.Revision,
		"changed":  result.Changed,
	})
}

// readUpload parses a multipart request and returns its "file" part. On
// failure the error response has already been written.
func readUpload(w http.ResponseWriter, r *http.Request) (upload.File, formValues, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBodyBytes)
	if err := r.ParseMultipartForm(maxMultipartBodyBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeServiceError(w, fmt.Errorf("%w: request exceeds %d MB", upload.ErrTooLarge, maxMultipartBodyBytes>>20))
			return upload.File{}, nil, false
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form expected", nil)
		return upload.File{}, nil, false
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "file is required", map[string]any{"field": "file"})
		return upload.File{}, nil, false
	}
	defer part.Close()
	data, err := io.ReadAll(part)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read file", nil)
		return upload.File{}, nil, false
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return upload.File{Name: header.Filename, ContentType: contentType, Data: data}, formValues(r.MultipartForm.Value), true
}

type formValues map[string][]string

func (f formValues) Get(key string) string {
	if values := f[key]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

// idFromRequest reads the record id from the query string, falling back to
// the JSON body.
func idFromRequest(w http.ResponseWriter, r *http.Request, keys ...string) (string, error) {
	for _, key := range keys {
		if id := strings.TrimSpace(r.URL.Query().Get(key)); id != "" {
			return id, nil
		}
	}
	var body map[string]any
	if err := decodeBody(w, r, &body); err != nil {
		return "", err
	}
	for _, key := range keys {
		if id, ok := body[key].(string); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id), nil
		}
	}
	return "", nil
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSuccess writes fields inside a success envelope.
func writeSuccess(w http.ResponseWriter, status int, fields map[string]any) {
	response := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		response[key] = value
	}
	response["success"] = true
	writeJSON(w, status, response)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"success": false,
		"code":    code,
		"error":   message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

// decodeBody decodes a JSON body into target. An empty body leaves target
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}
