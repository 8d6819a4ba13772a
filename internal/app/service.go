package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"sitecms/api/internal/authpw"
	"sitecms/api/internal/config"
	"sitecms/api/internal/email"
	"sitecms/api/internal/gitrepo"
	"sitecms/api/internal/recaptcha"
	"sitecms/api/internal/search"
	"sitecms/api/internal/session"
	"sitecms/api/internal/siteconfig"
	"sitecms/api/internal/store"
	"sitecms/api/internal/twilio"
	"sitecms/api/internal/upload"
	"sitecms/api/internal/vapi"
)

const (
	collectionQuotes        = "quotes"
	collectionChatHistory   = "chat-history"
	collectionKnowledge     = "knowledge-base"
	collectionKnowledgeText = "knowledge-text"

	contentDocument = "homepage"
)

// Endpoints overrides third-party API locations. Zero values mean the
// public endpoints.
type Endpoints struct {
	TwilioBaseURL      string
	VAPIBaseURL        string
	RecaptchaVerifyURL string
	ResendURL          string
	HTTPClient         *http.Client
}

type Deps struct {
	Config   config.Config
	Store    *store.Store
	Sessions *session.Manager
	Auth     *authpw.Service
	Site     *siteconfig.Provider
	Uploads  *upload.Registry
	Search   *search.Service
	// Meili is used to build the search service when Search is nil. It may
	// be nil, in which case search scans the collection.
	Meili     *search.Meili
	Git       *gitrepo.Service
	Logger    *slog.Logger
	Endpoints Endpoints
	Now       func() time.Time
}

type Service struct {
	cfg       config.Config
	store     *store.Store
	sessions  *session.Manager
	auth      *authpw.Service
	site      *siteconfig.Provider
	uploads   *upload.Registry
	search    *search.Service
	git       *gitrepo.Service
	logger    *slog.Logger
	endpoints Endpoints
	now       func() time.Time
}

func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		cfg:       deps.Config,
		store:     deps.Store,
		sessions:  deps.Sessions,
		auth:      deps.Auth,
		site:      deps.Site,
		uploads:   deps.Uploads,
		search:    deps.Search,
		git:       deps.Git,
		logger:    logger,
		endpoints: deps.Endpoints,
		now:       now,
	}
	if s.search == nil {
		s.search = search.NewService(deps.Meili, s.SearchRecords, logger)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ReindexSearch pushes every knowledge document to the search index.
func (s *Service) ReindexSearch(ctx context.Context) {
	s.search.ReindexAll(ctx)
}

func (s *Service) Close() {
	s.search.Close()
}

func (s *Service) quotes() *store.Collection {
	return s.store.Collection(collectionQuotes)
}

func (s *Service) chats() *store.Collection {
	return s.store.Collection(collectionChatHistory)
}

func (s *Service) knowledge() *store.Collection {
	return s.store.Collection(collectionKnowledge)
}

func (s *Service) knowledgeText() *store.Collection {
	return s.store.Collection(collectionKnowledgeText)
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *Service) emailService(ctx context.Context) *email.Service {
	opts := []email.Option{}
	if s.endpoints.ResendURL != "" {
		opts = append(opts, email.WithResendURL(s.endpoints.ResendURL))
	}
	if s.endpoints.HTTPClient != nil {
		opts = append(opts, email.WithHTTPClient(s.endpoints.HTTPClient))
	}
	return email.NewService(s.site.Email(ctx), opts...)
}

func (s *Service) twilioClient(ctx context.Context) *twilio.Client {
	opts := []twilio.Option{}
	if s.endpoints.TwilioBaseURL != "" {
		opts = append(opts, twilio.WithBaseURL(s.endpoints.TwilioBaseURL))
	}
	if s.endpoints.HTTPClient != nil {
		opts = append(opts, twilio.WithHTTPClient(s.endpoints.HTTPClient))
	}
	return twilio.NewClient(s.site.Twilio(ctx), opts...)
}

func (s *Service) vapiClient(ctx context.Context) *vapi.Client {
	opts := []vapi.Option{}
	if s.endpoints.VAPIBaseURL != "" {
		opts = append(opts, vapi.WithBaseURL(s.endpoints.VAPIBaseURL))
	}
	if s.endpoints.HTTPClient != nil {
		opts = append(opts, vapi.WithHTTPClient(s.endpoints.HTTPClient))
	}
	return vapi.NewClient(s.site.VAPI(ctx), opts...)
}

func (s *Service) recaptchaVerifier(ctx context.Context) *recaptcha.Verifier {
	opts := []recaptcha.Option{}
	if s.endpoints.RecaptchaVerifyURL != "" {
		opts = append(opts, recaptcha.WithVerifyURL(s.endpoints.RecaptchaVerifyURL))
	}
	if s.endpoints.HTTPClient != nil {
		opts = append(opts, recaptcha.WithHTTPClient(s.endpoints.HTTPClient))
	}
	return recaptcha.NewVerifier(s.site.Recaptcha(ctx), opts...)
}

func (s *Service) siteName(ctx context.Context) string {
	if name := s.site.Company(ctx).Name; name != "" {
		return name
	}
	return "Website"
}

// writeFailure keeps NotFound as is and marks anything else as a storage
// failure.
func writeFailure(err error) error {
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return err
	}
	return storageError(err)
}

// sortNewestFirst orders records by a timestamp field, newest first. Records
// without a parseable time sort last, in their stored order.
func sortNewestFirst(records []store.Record, field string) []store.Record {
	type keyed struct {
		rec store.Record
		at  time.Time
		ok  bool
	}
	items := make([]keyed, len(records))
	for i, rec := range records {
		at, err := time.Parse(time.RFC3339Nano, rec.String(field))
		items[i] = keyed{rec: rec, at: at, ok: err == nil}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ok != items[j].ok {
			return items[i].ok
		}
		return items[i].at.After(items[j].at)
	})
	out := make([]store.Record, len(items))
	for i, item := range items {
		out[i] = item.rec
	}
	return out
}
