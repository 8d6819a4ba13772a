// Package recaptcha verifies client tokens against Google's siteverify
// endpoint.
package recaptcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sitecms/api/internal/upstream"
)

const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Settings is the reCAPTCHA section of the site configuration. MinScore
// applies to v3 tokens only; zero disables the score check.
type Settings struct {
	Enabled   bool    `json:"enabled"`
	SiteKey   string  `json:"siteKey,omitempty"`
	SecretKey string  `json:"secretKey,omitempty"`
	MinScore  float64 `json:"minScore,omitempty"`
}

type Result struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score,omitempty"`
	Action     string   `json:"action,omitempty"`
	Hostname   string   `json:"hostname,omitempty"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

type Verifier struct {
	settings  Settings
	verifyURL string
	client    *http.Client
}

type Option func(*Verifier)

func WithVerifyURL(verifyURL string) Option {
	return func(v *Verifier) { v.verifyURL = verifyURL }
}

func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) { v.client = client }
}

func NewVerifier(settings Settings, opts ...Option) *Verifier {
	v := &Verifier{
		settings:  settings,
		verifyURL: DefaultVerifyURL,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Enabled reports whether tokens must be checked at all.
func (v *Verifier) Enabled() bool {
	return v.settings.Enabled
}

// Verify checks token. A rejected token is reported through Result.Success,
// not as an error; errors mean the check itself could not be made.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) (Result, error) {
	if v.settings.SecretKey == "" {
		return Result{}, upstream.NotConfigured("recaptcha")
	}
	if strings.TrimSpace(token) == "" {
		return Result{Success: false, ErrorCodes: []string{"missing-input-response"}}, nil
	}

	form := url.Values{}
	form.Set("secret", v.settings.SecretKey)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("build recaptcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return Result{}, &upstream.Error{Service: "recaptcha", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Result{}, &upstream.Error{Service: "recaptcha", Status: resp.StatusCode, Message: resp.Status}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, &upstream.Error{Service: "recaptcha", Status: resp.StatusCode, Message: "unreadable response"}
	}
	if result.Success && v.settings.MinScore > 0 && result.Score != nil && *result.Score < v.settings.MinScore {
		result.Success = false
		result.ErrorCodes = append(result.ErrorCodes, "score-too-low")
	}
	return result, nil
}
