package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr          string        `yaml:"addr"`
	PublicDir     string        `yaml:"public_dir"`
	CORSOrigin    string        `yaml:"cors_origin"`
	LogLevel      string        `yaml:"log_level"`
	LogFile       string        `yaml:"log_file"`
	StoreBackend  string        `yaml:"store_backend"`
	DataDir       string        `yaml:"data_dir"`
	RedisURL      string        `yaml:"redis_url"`
	DatabaseURL   string        `yaml:"database_url"`
	MigrationsDir string        `yaml:"migrations_dir"`
	ContentRepo   string        `yaml:"content_repo"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	CookieSecure  bool          `yaml:"cookie_secure"`
	// Administrator credential
	AdminEmail        string `yaml:"admin_email"`
	AdminPassword     string `yaml:"admin_password"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
	AdminName         string `yaml:"admin_name"`
	AdminRole         string `yaml:"admin_role"`
	// Guarded page prefixes
	ProtectedPrefixes []string `yaml:"protected_prefixes"`
	LoginPath         string   `yaml:"login_path"`
	// Uploads
	UploadBackend   string `yaml:"upload_backend"`
	UploadDir       string `yaml:"upload_dir"`
	UploadURLPrefix string `yaml:"upload_url_prefix"`
	S3Endpoint      string `yaml:"s3_endpoint"`
	S3AccessKey     string `yaml:"s3_access_key"`
	S3SecretKey     string `yaml:"s3_secret_key"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Region        string `yaml:"s3_region"`
	S3UseSSL        bool   `yaml:"s3_use_ssl"`
	S3PublicURL     string `yaml:"s3_public_url"`
	BlobToken       string `yaml:"blob_token"`
	BlobAPIURL      string `yaml:"blob_api_url"`
	// Search
	MeiliURL       string `yaml:"meili_url"`
	MeiliMasterKey string `yaml:"meili_master_key"`
	// Integration fallbacks, used when the stored site config leaves a field empty
	SMTPHost          string `yaml:"smtp_host"`
	SMTPPort          string `yaml:"smtp_port"`
	SMTPUsername      string `yaml:"smtp_username"`
	SMTPPassword      string `yaml:"smtp_password"`
	SMTPFrom          string `yaml:"smtp_from"`
	SMTPFromName      string `yaml:"smtp_from_name"`
	ResendAPIKey      string `yaml:"resend_api_key"`
	NotifyEmail       string `yaml:"notify_email"`
	TwilioAccountSID  string `yaml:"twilio_account_sid"`
	TwilioAuthToken   string `yaml:"twilio_auth_token"`
	TwilioFromNumber  string `yaml:"twilio_from_number"`
	TwilioNotifyPhone string `yaml:"twilio_notify_phone"`
	VAPIAPIKey        string `yaml:"vapi_api_key"`
	VAPIAssistantID   string `yaml:"vapi_assistant_id"`
	VAPIPhoneNumberID string `yaml:"vapi_phone_number_id"`
	RecaptchaSecret   string `yaml:"recaptcha_secret"`
	RecaptchaSiteKey  string `yaml:"recaptcha_site_key"`
}

func defaults() Config {
	return Config{
		Addr:              ":8080",
		PublicDir:         "./public",
		CORSOrigin:        "*",
		LogLevel:          "INFO",
		StoreBackend:      "file",
		DataDir:           "./data",
		RedisURL:          "redis://localhost:6379/0",
		MigrationsDir:     "./db/migrations",
		ContentRepo:       "./data/content-repo",
		SessionSecret:     "sitecms-dev-secret",
		SessionTTL:        24 * time.Hour,
		AdminEmail:        "admin@example.com",
		AdminPassword:     "admin123",
		AdminName:         "Administrator",
		AdminRole:         "admin",
		ProtectedPrefixes: []string{"/admin"},
		LoginPath:         "/admin/login",
		UploadBackend:     "local",
		UploadDir:         "./public/uploads",
		UploadURLPrefix:   "/uploads",
		S3Region:          "us-east-1",
		S3UseSSL:          true,
		BlobAPIURL:        "https://blob.vercel-storage.com",
		SMTPPort:          "587",
		SMTPFromName:      "Website",
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// SITECMS_CONFIG_FILE and finally the environment.
func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("SITECMS_CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = getenv("API_ADDR", cfg.Addr)
	cfg.PublicDir = getenv("SITECMS_PUBLIC_DIR", cfg.PublicDir)
	cfg.CORSOrigin = getenv("SITECMS_CORS_ORIGIN", cfg.CORSOrigin)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getenv("LOG_FILE", cfg.LogFile)
	cfg.StoreBackend = getenv("STORE_BACKEND", cfg.StoreBackend)
	cfg.DataDir = getenv("SITECMS_DATA_DIR", cfg.DataDir)
	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.MigrationsDir = getenv("SITECMS_MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.ContentRepo = getenv("SITECMS_CONTENT_REPO", cfg.ContentRepo)
	cfg.SessionSecret = getenv("SITECMS_SESSION_SECRET", cfg.SessionSecret)
	cfg.SessionTTL = time.Duration(getenvInt("SITECMS_SESSION_TTL_SECONDS", int(cfg.SessionTTL/time.Second))) * time.Second
	cfg.CookieSecure = getenvBool("SITECMS_COOKIE_SECURE", cfg.CookieSecure)

	cfg.AdminEmail = getenv("ADMIN_EMAIL", cfg.AdminEmail)
	cfg.AdminPassword = getenv("ADMIN_PASSWORD", cfg.AdminPassword)
	cfg.AdminPasswordHash = getenv("ADMIN_PASSWORD_HASH", cfg.AdminPasswordHash)
	cfg.AdminName = getenv("ADMIN_NAME", cfg.AdminName)
	cfg.AdminRole = getenv("ADMIN_ROLE", cfg.AdminRole)
	cfg.ProtectedPrefixes = getenvList("SITECMS_PROTECTED_PREFIXES", cfg.ProtectedPrefixes)
	cfg.LoginPath = getenv("SITECMS_LOGIN_PATH", cfg.LoginPath)

	cfg.UploadBackend = getenv("UPLOAD_BACKEND", cfg.UploadBackend)
	cfg.UploadDir = getenv("UPLOAD_DIR", cfg.UploadDir)
	cfg.UploadURLPrefix = getenv("UPLOAD_URL_PREFIX", cfg.UploadURLPrefix)
	cfg.S3Endpoint = getenv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3AccessKey = getenv("AWS_ACCESS_KEY_ID", cfg.S3AccessKey)
	cfg.S3SecretKey = getenv("AWS_SECRET_ACCESS_KEY", cfg.S3SecretKey)
	cfg.S3Bucket = getenv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Region = getenv("AWS_REGION", cfg.S3Region)
	cfg.S3UseSSL = getenvBool("S3_USE_SSL", cfg.S3UseSSL)
	cfg.S3PublicURL = getenv("S3_PUBLIC_URL", cfg.S3PublicURL)
	cfg.BlobToken = getenv("BLOB_READ_WRITE_TOKEN", cfg.BlobToken)
	cfg.BlobAPIURL = getenv("BLOB_API_URL", cfg.BlobAPIURL)

	cfg.MeiliURL = getenv("MEILI_URL", cfg.MeiliURL)
	cfg.MeiliMasterKey = getenv("MEILI_MASTER_KEY", cfg.MeiliMasterKey)

	// SMTP - empty by default, email disabled if not configured
	cfg.SMTPHost = getenv("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = getenv("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = getenv("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = getenv("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SMTPFrom = getenv("SMTP_FROM", cfg.SMTPFrom)
	cfg.SMTPFromName = getenv("SMTP_FROM_NAME", cfg.SMTPFromName)
	cfg.ResendAPIKey = getenv("RESEND_API_KEY", cfg.ResendAPIKey)
	cfg.NotifyEmail = getenv("NOTIFY_EMAIL", cfg.NotifyEmail)

	cfg.TwilioAccountSID = getenv("TWILIO_ACCOUNT_SID", cfg.TwilioAccountSID)
	cfg.TwilioAuthToken = getenv("TWILIO_AUTH_TOKEN", cfg.TwilioAuthToken)
	cfg.TwilioFromNumber = getenv("TWILIO_PHONE_NUMBER", cfg.TwilioFromNumber)
	cfg.TwilioNotifyPhone = getenv("TWILIO_NOTIFY_PHONE", cfg.TwilioNotifyPhone)
	cfg.VAPIAPIKey = getenv("VAPI_API_KEY", cfg.VAPIAPIKey)
	cfg.VAPIAssistantID = getenv("VAPI_ASSISTANT_ID", cfg.VAPIAssistantID)
	cfg.VAPIPhoneNumberID = getenv("VAPI_PHONE_NUMBER_ID", cfg.VAPIPhoneNumberID)
	cfg.RecaptchaSecret = getenv("RECAPTCHA_SECRET_KEY", cfg.RecaptchaSecret)
	cfg.RecaptchaSiteKey = getenv("RECAPTCHA_SITE_KEY", cfg.RecaptchaSiteKey)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
