// Package twilio sends SMS messages and places voice calls through the Twilio
// REST API.
package twilio

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	twiliosdk "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"sitecms/api/internal/upstream"
)

// Settings is the Twilio section of the site configuration. NotifyPhone is
// the owner's number that receives escalation alerts.
type Settings struct {
	AccountSID  string `json:"accountSid,omitempty"`
	AuthToken   string `json:"authToken,omitempty"`
	FromNumber  string `json:"fromNumber,omitempty"`
	NotifyPhone string `json:"notifyPhone,omitempty"`
}

func (s Settings) IsConfigured() bool {
	return s.AccountSID != "" && s.AuthToken != "" && s.FromNumber != ""
}

type Client struct {
	settings Settings
	baseURL  *url.URL
	client   *http.Client
}

type Option func(*Client)

// WithBaseURL sends every API request to baseURL's scheme and host instead of
// api.twilio.com. Paths are left as the SDK builds them.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

func NewClient(settings Settings, opts ...Option) *Client {
	c := &Client{
		settings: settings,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) rest() *twiliosdk.RestClient {
	httpClient := c.client
	if c.baseURL != nil {
		copied := *httpClient
		copied.Transport = rewriteHost{target: c.baseURL, next: httpClient.Transport}
		httpClient = &copied
	}
	base := &twclient.Client{
		Credentials: twclient.NewCredentials(c.settings.AccountSID, c.settings.AuthToken),
		HTTPClient:  httpClient,
	}
	base.SetAccountSid(c.settings.AccountSID)
	return twiliosdk.NewRestClientWithParams(twiliosdk.ClientParams{Client: base})
}

type rewriteHost struct {
	target *url.URL
	next   http.RoundTripper
}

func (t rewriteHost) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Host = t.target.Host
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(out)
}

func (c *Client) IsConfigured() bool {
	return c.settings.IsConfigured()
}

func (c *Client) NotifyPhone() string {
	return c.settings.NotifyPhone
}

// SendSMS returns the message SID.
func (c *Client) SendSMS(ctx context.Context, to, body string) (string, error) {
	if err := c.ready(ctx); err != nil {
		return "", err
	}
	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.settings.FromNumber)
	params.SetBody(body)
	message, err := c.rest().Api.CreateMessage(params)
	if err != nil {
		return "", upstreamError(err)
	}
	return deref(message.Sid), nil
}

// Call places a voice call that reads message aloud, returning the call SID.
func (c *Client) Call(ctx context.Context, to, message string) (string, error) {
	if err := c.ready(ctx); err != nil {
		return "", err
	}
	twiml, err := sayTwiML(message)
	if err != nil {
		return "", err
	}
	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.settings.FromNumber)
	params.SetTwiml(twiml)
	call, err := c.rest().Api.CreateCall(params)
	if err != nil {
		return "", upstreamError(err)
	}
	return deref(call.Sid), nil
}

func (c *Client) ready(ctx context.Context) error {
	if !c.IsConfigured() {
		return upstream.NotConfigured("twilio")
	}
	return ctx.Err()
}

func sayTwiML(message string) (string, error) {
	type say struct {
		Voice string `xml:"voice,attr"`
		Text  string `xml:",chardata"`
	}
	type response struct {
		XMLName xml.Name `xml:"Response"`
		Say     say      `xml:"Say"`
	}
	out, err := xml.Marshal(response{Say: say{Voice: "alice", Text: message}})
	if err != nil {
		return "", fmt.Errorf("encode twiml: %w", err)
	}
	return string(out), nil
}

func upstreamError(err error) error {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		return &upstream.Error{Service: "twilio", Status: restErr.Status, Message: restErr.Message}
	}
	return &upstream.Error{Service: "twilio", Message: err.Error()}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
