package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingSecretKey is returned when SECRET_KEY is not set. The server must not start without it.
var ErrMissingSecretKey = errors.New("no SECRET_KEY set for application")

// EnvProduction is the environment name that enables the destructive-operation guards.
const EnvProduction = "production"

const sqliteScheme = "sqlite:///"

// LocalMessageQueue as MESSAGE_QUEUE_URL keeps real-time events within one process.
const LocalMessageQueue = "local"

// Config holds every setting resolved at process start.
// Optional secrets are nil when absent; components degrade instead of failing.
type Config struct {
	Debug   bool
	Testing bool

	// Environment is APP_ENV, falling back to FLASK_ENV
	Environment string
	// InsecureTransport relaxes the OAuth https requirement in development
	InsecureTransport bool

	DatabaseURI string `validate:"required"`
	InstanceDir string `validate:"required"`

	SecretKey           string `validate:"required"`
	JWTSecretKey        string `validate:"required"`
	JWTRefreshSecretKey string `validate:"required"`
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration

	SwaggerURL  string
	SwaggerFile string

	SenderEmail    *string
	SendGridAPIKey *string
	SupportEmail   string `validate:"omitempty,email"`

	GoogleClientID     *string
	GoogleClientSecret *string

	OpenAIAPIKey *string
	GeminiAPIKey *string

	Port    int    `validate:"min=1,max=65535"`
	BaseURL string `validate:"required,url"`

	// MessageQueueURL is the Redis URL used for real-time fan-out across processes, or LocalMessageQueue
	MessageQueueURL string

	RateLimit struct {
		RequestsPerSecond int `validate:"min=1"`
		Burst             int `validate:"min=1"`
	}

	// Secrets selects an external store that overrides credentials after Load
	Secrets struct {
		Provider string `validate:"omitempty,oneof=env vault aws"`
		Vault    struct {
			Address string
			Token   string
			Path    string
		}
		AWS struct {
			Region   string
			SecretID string
			Endpoint string
		}
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", true)
	v.SetDefault("testing", true)
	v.SetDefault("database_uri", "sqlite:///app.db")
	v.SetDefault("instance_dir", "instance")
	v.SetDefault("jwt_secret_key", "secret_key")
	v.SetDefault("jwt_refresh_secret", "refresh_secret_key")
	v.SetDefault("jwt_access_ttl", 15*time.Minute)
	v.SetDefault("jwt_refresh_ttl", 30*24*time.Hour)
	v.SetDefault("swagger_url", "/docs")
	v.SetDefault("swagger_file", "/static/swagger.yaml")
	v.SetDefault("support_email", "support@your-domain.com")
	v.SetDefault("port", 5001)
	v.SetDefault("message_queue_url", "redis://localhost:6379/0")
	v.SetDefault("rate_limit.rps", 50)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("secrets.vault.path", "secret/data/ux-interviewer")
	v.SetDefault("secrets.aws.region", "us-east-1")
	v.SetDefault("secrets.aws.secret", "ux-interviewer/secrets")
}

// bindEnv maps every setting to the exact environment variable name operators already use.
func bindEnv(v *viper.Viper) {
	bindings := map[string]string{
		"debug":                "DEBUG",
		"testing":              "TESTING",
		"app_env":              "APP_ENV",
		"flask_env":            "FLASK_ENV",
		"database_uri":         "DATABASE_URI",
		"instance_dir":         "INSTANCE_DIR",
		"secret_key":           "SECRET_KEY",
		"jwt_secret_key":       "JWT_SECRET_KEY",
		"jwt_refresh_secret":   "JWT_REFRESH_SECRET",
		"jwt_access_ttl":       "JWT_ACCESS_TTL",
		"jwt_refresh_ttl":      "JWT_REFRESH_TTL",
		"swagger_url":          "SWAGGER_URL",
		"swagger_file":         "SWAGGER_FILE",
		"sender_email":         "SENDER_EMAIL",
		"sendgrid_api_key":     "SENDGRID_API_KEY",
		"support_email":        "SUPPORT_EMAIL",
		"google_client_id":     "GOOGLE_CLIENT_ID",
		"google_client_secret": "GOOGLE_CLIENT_SECRET",
		"openai_api_key":       "OPENAI_API_KEY",
		"gemini_api_key":       "GEMINI_API_KEY",
		"port":                 "PORT",
		"base_url":             "BASE_URL",
		"message_queue_url":    "MESSAGE_QUEUE_URL",
		"rate_limit.rps":       "RATE_LIMIT_RPS",
		"rate_limit.burst":     "RATE_LIMIT_BURST",
		"secrets.provider":     "SECRETS_PROVIDER",
		"secrets.vault.addr":   "VAULT_ADDR",
		"secrets.vault.token":  "VAULT_TOKEN",
		"secrets.vault.path":   "VAULT_SECRET_PATH",
		"secrets.aws.region":   "AWS_REGION",
		"secrets.aws.secret":   "AWS_SECRET_ID",
		"secrets.aws.endpoint": "AWS_ENDPOINT_URL",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

// Load resolves the configuration. A .env file in the working directory is read
// first; variables already present in the environment take precedence over it.
// An optional config.yaml is honored for non-secret settings.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return FromViper(v), nil
}

// FromViper resolves a Config from an existing viper instance.
// It never fails: absent optional settings resolve to nil.
func FromViper(v *viper.Viper) *Config {
	setDefaults(v)
	bindEnv(v)

	cfg := &Config{
		Debug:               v.GetBool("debug"),
		Testing:             v.GetBool("testing"),
		DatabaseURI:         v.GetString("database_uri"),
		InstanceDir:         v.GetString("instance_dir"),
		SecretKey:           v.GetString("secret_key"),
		JWTSecretKey:        v.GetString("jwt_secret_key"),
		JWTRefreshSecretKey: v.GetString("jwt_refresh_secret"),
		AccessTokenTTL:      v.GetDuration("jwt_access_ttl"),
		RefreshTokenTTL:     v.GetDuration("jwt_refresh_ttl"),
		SwaggerURL:          v.GetString("swagger_url"),
		SwaggerFile:         v.GetString("swagger_file"),
		SenderEmail:         optional(v, "sender_email"),
		SendGridAPIKey:      optional(v, "sendgrid_api_key"),
		SupportEmail:        v.GetString("support_email"),
		GoogleClientID:      optional(v, "google_client_id"),
		GoogleClientSecret:  optional(v, "google_client_secret"),
		OpenAIAPIKey:        optional(v, "openai_api_key"),
		GeminiAPIKey:        optional(v, "gemini_api_key"),
		Port:                v.GetInt("port"),
		BaseURL:             v.GetString("base_url"),
		MessageQueueURL:     v.GetString("message_queue_url"),
	}
	cfg.RateLimit.RequestsPerSecond = v.GetInt("rate_limit.rps")
	cfg.RateLimit.Burst = v.GetInt("rate_limit.burst")
	cfg.Secrets.Provider = v.GetString("secrets.provider")
	cfg.Secrets.Vault.Address = v.GetString("secrets.vault.addr")
	cfg.Secrets.Vault.Token = v.GetString("secrets.vault.token")
	cfg.Secrets.Vault.Path = v.GetString("secrets.vault.path")
	cfg.Secrets.AWS.Region = v.GetString("secrets.aws.region")
	cfg.Secrets.AWS.SecretID = v.GetString("secrets.aws.secret")
	cfg.Secrets.AWS.Endpoint = v.GetString("secrets.aws.endpoint")

	cfg.Environment = v.GetString("app_env")
	if cfg.Environment == "" {
		cfg.Environment = v.GetString("flask_env")
	}
	cfg.InsecureTransport = cfg.Environment == "development"

	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	return cfg
}

func optional(v *viper.Viper, key string) *string {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return nil
	}
	return &value
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return ErrMissingSecretKey
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if _, err := c.DatabasePath(); err != nil {
		return err
	}
	return nil
}

// IsProduction reports whether the process runs with APP_ENV/FLASK_ENV=production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// DatabasePath resolves DatabaseURI to a file path. Relative sqlite paths live
// inside the instance directory; sqlite:////abs/path is kept absolute.
func (c *Config) DatabasePath() (string, error) {
	if !strings.HasPrefix(c.DatabaseURI, sqliteScheme) {
		return "", fmt.Errorf("unsupported database URI %q: only %s is supported", c.DatabaseURI, sqliteScheme)
	}
	path := strings.TrimPrefix(c.DatabaseURI, sqliteScheme)
	if path == "" {
		return "", fmt.Errorf("database URI %q has no path", c.DatabaseURI)
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	return filepath.Join(c.InstanceDir, path), nil
}

// Value returns the content of an optional setting, or "" when absent.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
