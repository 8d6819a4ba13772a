// Package vapi starts outbound AI voice calls through the VAPI API.
package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sitecms/api/internal/upstream"
)

const DefaultBaseURL = "https://api.vapi.ai"

type Settings struct {
	APIKey        string `json:"apiKey,omitempty"`
	AssistantID   string `json:"assistantId,omitempty"`
	PhoneNumberID string `json:"phoneNumberId,omitempty"`
}

func (s Settings) IsConfigured() bool {
	return s.APIKey != "" && s.AssistantID != "" && s.PhoneNumberID != ""
}

// CallRequest describes who to call. Context is handed to the assistant as
// the "context" variable.
type CallRequest struct {
	CustomerNumber string
	CustomerName   string
	Context        string
	Variables      map[string]string
}

type Call struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Client struct {
	settings Settings
	baseURL  string
	client   *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

func NewClient(settings Settings, opts ...Option) *Client {
	c := &Client{
		settings: settings,
		baseURL:  DefaultBaseURL,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) IsConfigured() bool {
	return c.settings.IsConfigured()
}

type customer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

type assistantOverrides struct {
	VariableValues map[string]string `json:"variableValues,omitempty"`
}

type createCallRequest struct {
	AssistantID        string              `json:"assistantId"`
	PhoneNumberID      string              `json:"phoneNumberId"`
	Customer           customer            `json:"customer"`
	AssistantOverrides *assistantOverrides `json:"assistantOverrides,omitempty"`
}

func (c *Client) CreateCall(ctx context.Context, in CallRequest) (Call, error) {
	if !c.IsConfigured() {
		return Call{}, upstream.NotConfigured("vapi")
	}
	if strings.TrimSpace(in.CustomerNumber) == "" {
		return Call{}, fmt.Errorf("vapi: customer number is required")
	}

	vars := make(map[string]string, len(in.Variables)+1)
	for k, v := range in.Variables {
		vars[k] = v
	}
	if in.Context != "" {
		vars["context"] = in.Context
	}
	payload := createCallRequest{
		AssistantID:   c.settings.AssistantID,
		PhoneNumberID: c.settings.PhoneNumberID,
		Customer:      customer{Number: in.CustomerNumber, Name: in.CustomerName},
	}
	if len(vars) > 0 {
		payload.AssistantOverrides = &assistantOverrides{VariableValues: vars}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Call{}, fmt.Errorf("marshal vapi request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return Call{}, fmt.Errorf("build vapi request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Call{}, &upstream.Error{Service: "vapi", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode/100 != 2 {
		return Call{}, &upstream.Error{Service: "vapi", Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	var call Call
	if err := json.Unmarshal(raw, &call); err != nil {
		return Call{}, &upstream.Error{Service: "vapi", Status: resp.StatusCode, Message: "unreadable response"}
	}
	return call, nil
}

// errorMessage pulls "message" out of a VAPI error body. The field is either
// a string or a list of strings.
func errorMessage(raw []byte) string {
	var body struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		var single string
		if json.Unmarshal(body.Message, &single) == nil && single != "" {
			return single
		}
		var many []string
		if json.Unmarshal(body.Message, &many) == nil && len(many) > 0 {
			return strings.Join(many, "; ")
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
