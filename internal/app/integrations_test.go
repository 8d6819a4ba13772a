package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"sitecms/api/internal/email"
	"sitecms/api/internal/recaptcha"
	"sitecms/api/internal/siteconfig"
	"sitecms/api/internal/store"
	"sitecms/api/internal/twilio"
	"sitecms/api/internal/vapi"
)

func vapiSettings() vapi.Settings {
	return vapi.Settings{APIKey: "vapi-key", AssistantID: "asst_1", PhoneNumberID: "pn_1"}
}

func TestCaptchaVerifySkippedWhenDisabled(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	rec := env.do(jsonRequest(t, http.MethodPost, "/api/captcha-verify", map[string]any{"token": "anything"}))
	body := expectSuccess(t, rec, http.StatusOK)
	if body["skipped"] != true {
		t.Fatalf("expected skipped verification, got %v", body)
	}
}

func TestCaptchaVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("response") == "good" {
			_, _ = w.Write([]byte(`{"success":true,"score":0.9,"action":"quote"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer srv.Close()

	env := newTestEnv(t, testOptions{
		site:      siteconfig.SiteConfig{Recaptcha: recaptcha.Settings{Enabled: true, SecretKey: "secret", MinScore: 0.5}},
		endpoints: Endpoints{RecaptchaVerifyURL: srv.URL},
	})

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/captcha-verify", map[string]any{"token": "good"}))
	body := expectSuccess(t, rec, http.StatusOK)
	if body["score"] != 0.9 {
		t.Fatalf("expected score in response, got %v", body)
	}

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/captcha-verify", map[string]any{"token": "bad"}))
	expectError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/quotes", map[string]any{"name": "Dana", "email": "dana@example.com", "captchaToken": "bad"}))
	expectError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/quotes", map[string]any{"name": "Dana", "email": "dana@example.com", "captchaToken": "good"}))
	body = expectSuccess(t, rec, http.StatusCreated)
	if quote, _ := body["quote"].(map[string]any); quote["captchaToken"] != nil {
		t.Fatalf("captcha token must not be stored: %v", quote)
	}
}

func TestCaptchaEnabledWithoutSecret(t *testing.T) {
	env := newTestEnv(t, testOptions{site: siteconfig.SiteConfig{Recaptcha: recaptcha.Settings{Enabled: true}}})
	rec := env.do(jsonRequest(t, http.MethodPost, "/api/captcha-verify", map[string]any{"token": "x"}))
	expectError(t, rec, http.StatusInternalServerError, "CONFIG_MISSING")
}

func TestEscalateWithNothingConfigured(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	rec := env.do(jsonRequest(t, http.MethodPost, "/api/escalate", map[string]any{
		"reason":      "wants a human",
		"userMessage": "Can someone call me?",
	}))
	body := expectSuccess(t, rec, http.StatusOK)
	channels, _ := body["channels"].(map[string]any)
	for _, channel := range []string{"sms", "call", "email"} {
		if channels[channel] != channelSkipped {
			t.Fatalf("channel %s = %v, want skipped", channel, channels[channel])
		}
	}
}

func TestEscalateRequiresReasonOrMessage(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	rec := env.do(jsonRequest(t, http.MethodPost, "/api/escalate", map[string]any{"userName": "Dana"}))
	expectError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestEscalateFailuresDoNotFailRequest(t *testing.T) {
	var mu sync.Mutex
	var resources []string
	twilioSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resources = append(resources, r.URL.Path)
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/Messages.json") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":21211,"message":"invalid To number","status":400}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA1"}`))
	}))
	defer twilioSrv.Close()

	env := newTestEnv(t, testOptions{
		site: siteconfig.SiteConfig{
			Twilio: twilio.Settings{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+15550000", NotifyPhone: "+15551111"},
		},
		endpoints: Endpoints{TwilioBaseURL: twilioSrv.URL},
	})
	if _, err := env.store.Collection(collectionChatHistory).AppendOne(context.Background(), store.Record{"id": "c1", "sessionId": "s-1", "status": "active"}); err != nil {
		t.Fatalf("seed chat: %v", err)
	}

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/escalate", map[string]any{
		"reason":    "angry customer",
		"userPhone": "+15552222",
		"sessionId": "s-1",
	}))
	body := expectSuccess(t, rec, http.StatusOK)
	channels, _ := body["channels"].(map[string]any)
	if channels["sms"] != channelFailed || channels["call"] != channelSent || channels["email"] != channelSkipped {
		t.Fatalf("unexpected channels %v", channels)
	}
	if len(resources) != 2 {
		t.Fatalf("expected an SMS and a call attempt, got %v", resources)
	}

	chat, err := env.store.Collection(collectionChatHistory).Find(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if chat.String("status") != "escalated" {
		t.Fatalf("chat session not marked escalated: %v", chat)
	}
}

func TestEscalatePrefersAssistantCall(t *testing.T) {
	called := make(chan string, 1)
	vapiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Customer struct {
				Number string `json:"number"`
			} `json:"customer"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		called <- payload.Customer.Number
		_, _ = w.Write([]byte(`{"id":"call_9","status":"queued"}`))
	}))
	defer vapiSrv.Close()

	env := newTestEnv(t, testOptions{
		site:      siteconfig.SiteConfig{VAPI: vapiSettings()},
		endpoints: Endpoints{VAPIBaseURL: vapiSrv.URL},
	})
	rec := env.do(jsonRequest(t, http.MethodPost, "/api/escalate", map[string]any{"reason": "callback", "userPhone": "+15553333"}))
	body := expectSuccess(t, rec, http.StatusOK)
	if channels, _ := body["channels"].(map[string]any); channels["call"] != channelSent {
		t.Fatalf("unexpected channels %v", channels)
	}
	if number := <-called; number != "+15553333" {
		t.Fatalf("assistant called %q", number)
	}
}

func TestEscalateSendsEmail(t *testing.T) {
	var subject string
	resendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		subject, _ = payload["subject"].(string)
		_, _ = w.Write([]byte(`{"id":"em_1"}`))
	}))
	defer resendSrv.Close()

	env := newTestEnv(t, testOptions{
		site:      siteconfig.SiteConfig{Email: email.Settings{ResendAPIKey: "re_key", From: "site@example.com", NotifyTo: "owner@example.com"}},
		endpoints: Endpoints{ResendURL: resendSrv.URL},
	})
	rec := env.do(jsonRequest(t, http.MethodPost, "/api/escalate", map[string]any{"reason": "urgent leak"}))
	body := expectSuccess(t, rec, http.StatusOK)
	if channels, _ := body["channels"].(map[string]any); channels["email"] != channelSent {
		t.Fatalf("unexpected channels %v", channels)
	}
	if !strings.Contains(subject, "urgent leak") {
		t.Fatalf("unexpected subject %q", subject)
	}
}

func TestCallTrigger(t *testing.T) {
	var received map[string]any
	vapiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer vapi-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"call_1","status":"queued"}`))
	}))
	defer vapiSrv.Close()

	env := newTestEnv(t, testOptions{
		site:      siteconfig.SiteConfig{Company: siteconfig.Company{Name: "Acme Builders"}, VAPI: vapiSettings()},
		endpoints: Endpoints{VAPIBaseURL: vapiSrv.URL},
	})
	seedQuote(t, env, store.Record{"id": "q1", "name": "Dana", "phone": "+15554444", "projectType": "loft conversion"})
	cookies := env.login(t)

	rec := env.do(withCookies(jsonRequest(t, http.MethodPost, "/api/call-trigger", map[string]any{"quoteId": "q1"}), cookies))
	body := expectSuccess(t, rec, http.StatusOK)
	if body["callId"] != "call_1" || body["quoteId"] != "q1" {
		t.Fatalf("unexpected response %v", body)
	}
	customer, _ := received["customer"].(map[string]any)
	if customer["number"] != "+15554444" || customer["name"] != "Dana" {
		t.Fatalf("unexpected customer %v", received["customer"])
	}
	overrides, _ := received["assistantOverrides"].(map[string]any)
	vars, _ := overrides["variableValues"].(map[string]any)
	if vars["company"] != "Acme Builders" || !strings.Contains(vars["context"].(string), "loft conversion") {
		t.Fatalf("unexpected variables %v", vars)
	}

	rec = env.do(withCookies(jsonRequest(t, http.MethodPost, "/api/call-trigger", map[string]any{"quoteId": "missing"}), cookies))
	expectError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = env.do(withCookies(jsonRequest(t, http.MethodPost, "/api/call-trigger", map[string]any{}), cookies))
	expectError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestCallTriggerUpstreamError(t *testing.T) {
	vapiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":["customer.number must be a valid phone number"]}`))
	}))
	defer vapiSrv.Close()

	env := newTestEnv(t, testOptions{
		site:      siteconfig.SiteConfig{VAPI: vapiSettings()},
		endpoints: Endpoints{VAPIBaseURL: vapiSrv.URL},
	})
	rec := env.do(withCookies(jsonRequest(t, http.MethodPost, "/api/call-trigger", map[string]any{"phoneNumber": "123"}), env.login(t)))
	body := expectError(t, rec, http.StatusInternalServerError, "UPSTREAM_ERROR")
	if body["error"] != "customer.number must be a valid phone number" {
		t.Fatalf("upstream message not surfaced: %v", body)
	}
}

func TestCallTriggerNotConfigured(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	rec := env.do(withCookies(jsonRequest(t, http.MethodPost, "/api/call-trigger", map[string]any{"phoneNumber": "+15550000"}), env.login(t)))
	expectError(t, rec, http.StatusInternalServerError, "CONFIG_MISSING")
}

func TestSiteConfigMasksSecrets(t *testing.T) {
	env := newTestEnv(t, testOptions{site: siteconfig.SiteConfig{Company: siteconfig.Company{Name: "Acme Builders"}}})
	cookies := env.login(t)

	update := siteconfig.SiteConfig{
		Company: siteconfig.Company{Name: "Acme Builders", Phone: "+15550000"},
		Twilio:  twilio.Settings{AccountSID: "AC1", AuthToken: "real-token", FromNumber: "+15550001"},
	}
	rec := env.do(withCookies(jsonRequest(t, http.MethodPut, "/api/admin/config", update), cookies))
	body := expectSuccess(t, rec, http.StatusOK)
	saved, _ := body["config"].(map[string]any)
	twilioCfg, _ := saved["twilio"].(map[string]any)
	if twilioCfg["authToken"] != siteconfig.Mask {
		t.Fatalf("secret must be masked, got %v", twilioCfg)
	}

	update.Twilio.AuthToken = siteconfig.Mask
	update.Twilio.FromNumber = "+15550002"
	rec = env.do(withCookies(jsonRequest(t, http.MethodPut, "/api/admin/config", update), cookies))
	expectSuccess(t, rec, http.StatusOK)

	got := env.service.site.Twilio(context.Background())
	if got.AuthToken != "real-token" || got.FromNumber != "+15550002" {
		t.Fatalf("masked secret must survive a save, got %+v", got)
	}

	rec = env.do(withCookies(jsonRequest(t, http.MethodGet, "/api/admin/config", nil), cookies))
	body = expectSuccess(t, rec, http.StatusOK)
	if strings.Contains(rec.Body.String(), "real-token") {
		t.Fatalf("secret leaked: %s", rec.Body.String())
	}
	if backends := fmt.Sprint(body["uploadBackends"]); backends != "[base64 local]" {
		t.Fatalf("unexpected upload backends %s", backends)
	}

	rec = env.do(jsonRequest(t, http.MethodGet, "/api/site", nil))
	body = expectSuccess(t, rec, http.StatusOK)
	site, _ := body["site"].(map[string]any)
	company, _ := site["company"].(map[string]any)
	if company["phone"] != "+15550000" {
		t.Fatalf("unexpected public site %v", body)
	}
}
