package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sitecms/api/internal/app"
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

const devSessionSecret = "sitecms-dev-secret"

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, closeLog := config.SetupLogger(cfg.LogFile, config.ParseLogLevel(cfg.LogLevel))
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	uploads, err := buildUploads(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.SessionSecret == devSessionSecret {
		logger.Warn("using the development session secret, set SITECMS_SESSION_SECRET")
	}
	if cfg.AdminPasswordHash == "" {
		logger.Warn("admin password is stored in plain text, set ADMIN_PASSWORD_HASH")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	} else {
		logger.Info("meilisearch not configured, knowledge search scans the collection")
	}

	if err := os.MkdirAll(cfg.ContentRepo, 0o755); err != nil {
		return fmt.Errorf("create content repo dir: %w", err)
	}

	service := app.New(app.Deps{
		Config:   cfg,
		Store:    st,
		Sessions: session.NewManager(cfg.SessionSecret, cfg.SessionTTL, session.WithSecure(cfg.CookieSecure)),
		Auth: authpw.NewService(authpw.Credential{
			Email:        cfg.AdminEmail,
			Password:     cfg.AdminPassword,
			PasswordHash: cfg.AdminPasswordHash,
			Name:         cfg.AdminName,
			Role:         cfg.AdminRole,
		}),
		Site:    siteconfig.NewProvider(st, siteFallback(cfg), logger),
		Uploads: uploads,
		Meili:   meiliClient,
		Git:     gitrepo.New(cfg.ContentRepo),
		Logger:  logger,
	})
	defer service.Close()
	go service.ReindexSearch(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sitecms API listening", "addr", cfg.Addr, "store", cfg.StoreBackend, "upload_backends", uploads.Names())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return nil
}

// openStore builds the collection store on the configured backend.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*store.Store, error) {
	var backend store.Backend
	switch strings.ToLower(strings.TrimSpace(cfg.StoreBackend)) {
	case "", "file":
		fileBackend, err := store.NewFileBackend(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		backend = fileBackend
	case "redis":
		redisBackend, err := store.NewRedisBackend(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		backend = redisBackend
	case "postgres":
		pgBackend, err := store.OpenPostgresBackend(ctx, cfg.DatabaseURL, cfg.MigrationsDir, logger)
		if err != nil {
			return nil, err
		}
		backend = pgBackend
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return store.New(backend, logger), nil
}

// buildUploads registers every upload backend the configuration allows.
// Local and base64 are always available.
func buildUploads(cfg config.Config, logger *slog.Logger) (*upload.Registry, error) {
	backends := []upload.Backend{
		upload.NewLocalBackend(cfg.UploadDir, cfg.UploadURLPrefix),
		upload.NewBase64Backend(),
	}

	s3cfg := upload.S3Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
		PublicURL: cfg.S3PublicURL,
	}
	if s3cfg.IsConfigured() {
		s3Backend, err := upload.NewS3Backend(s3cfg)
		if err != nil {
			return nil, err
		}
		backends = append(backends, s3Backend)
	} else {
		logger.Debug("s3 uploads not configured")
	}

	if cfg.BlobToken != "" {
		blobBackend, err := upload.NewBlobBackend(cfg.BlobToken, cfg.BlobAPIURL, nil)
		if err != nil {
			return nil, err
		}
		backends = append(backends, blobBackend)
	} else {
		logger.Debug("blob uploads not configured")
	}

	return upload.NewRegistry(cfg.UploadBackend, backends...)
}

// siteFallback maps environment credentials onto the site configuration
// shape. Values saved from the dashboard take precedence.
func siteFallback(cfg config.Config) siteconfig.SiteConfig {
	return siteconfig.SiteConfig{
		Email: email.Settings{
			ResendAPIKey: cfg.ResendAPIKey,
			SMTPHost:     cfg.SMTPHost,
			SMTPPort:     cfg.SMTPPort,
			SMTPUsername: cfg.SMTPUsername,
			SMTPPassword: cfg.SMTPPassword,
			From:         cfg.SMTPFrom,
			FromName:     cfg.SMTPFromName,
			NotifyTo:     cfg.NotifyEmail,
		},
		Twilio: twilio.Settings{
			AccountSID:  cfg.TwilioAccountSID,
			AuthToken:   cfg.TwilioAuthToken,
			FromNumber:  cfg.TwilioFromNumber,
			NotifyPhone: cfg.TwilioNotifyPhone,
		},
		VAPI: vapi.Settings{
			APIKey:        cfg.VAPIAPIKey,
			AssistantID:   cfg.VAPIAssistantID,
			PhoneNumberID: cfg.VAPIPhoneNumberID,
		},
		Recaptcha: recaptcha.Settings{
			Enabled:   cfg.RecaptchaSecret != "",
			SiteKey:   cfg.RecaptchaSiteKey,
			SecretKey: cfg.RecaptchaSecret,
		},
	}
}
