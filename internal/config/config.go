// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Serve: listen port, identity-provider client ID, cookie signing secret
//   - AI: model selection, embedder model, agentic loop turns
//   - Storage: PostgreSQL connection for the amenity catalog
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidPort indicates the listen port is out of range.
	ErrInvalidPort = errors.New("invalid port")

	// ErrMissingCookieSecret indicates the session cookie signing secret is not set.
	ErrMissingCookieSecret = errors.New("missing cookie secret")

	// ErrInvalidCookieSecret indicates the cookie secret is too short.
	ErrInvalidCookieSecret = errors.New("invalid cookie secret")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidDatabaseURL indicates DATABASE_URL could not be parsed.
	ErrInvalidDatabaseURL = errors.New("invalid DATABASE_URL")
)

// minCookieSecretLen is the minimum byte length accepted for the cookie
// signing secret. Shorter HMAC keys weaken the session cookie signature.
const minCookieSecretLen = 32

// Config stores application configuration.
type Config struct {
	// HTTP serve configuration
	Port     int    `mapstructure:"port" json:"port"`
	ClientID string `mapstructure:"client_id" json:"client_id"` // identity-provider application ID

	// CookieSecret signs session cookies. SENSITIVE: never logged.
	CookieSecret string `mapstructure:"cookie_secret" json:"-"`

	// AI provider and model configuration
	ModelName     string `mapstructure:"model_name" json:"model_name"`         // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"` // e.g. "text-embedding-004"
	MaxTurns      int    `mapstructure:"max_turns" json:"max_turns"`           // agentic tool-calling loop limit

	// Storage configuration (amenity catalog)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// RateBurst is the per-IP rate limiter burst size (0 = default).
	RateBurst int `mapstructure:"rate_burst" json:"rate_burst"`

	// TrustProxy trusts X-Real-IP/X-Forwarded-For for client addresses.
	// Enable only behind a reverse proxy that sets these headers.
	TrustProxy bool `mapstructure:"trust_proxy" json:"trust_proxy"`
}

// IsDev reports whether the deployment looks like local development.
// Controls the Secure flag on session cookies.
func (c *Config) IsDev() bool {
	return c.PostgresSSLMode == "disable"
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the discrete postgres settings.
	if rawURL := v.GetString("database_url"); rawURL != "" {
		if err := cfg.applyDatabaseURL(rawURL); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8081)
	v.SetDefault("model_name", "googleai/gemini-2.5-flash")
	v.SetDefault("embedder_model", "text-embedding-004")
	v.SetDefault("max_turns", 5)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "gatewise")
	v.SetDefault("postgres_password", "gatewise_dev_password")
	v.SetDefault("postgres_db_name", "gatewise")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("port", "PORT")
	mustBind("client_id", "CLIENT_ID")
	mustBind("cookie_secret", "COOKIE_SECRET")
	mustBind("database_url", "DATABASE_URL")
	mustBind("model_name", "GATEWISE_MODEL_NAME")
	mustBind("embedder_model", "GATEWISE_EMBEDDER_MODEL")
	mustBind("rate_burst", "GATEWISE_RATE_BURST")
	mustBind("trust_proxy", "GATEWISE_TRUST_PROXY")
}

// applyDatabaseURL parses a postgres:// URL into the discrete fields.
func (c *Config) applyDatabaseURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDatabaseURL, err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDatabaseURL, u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if p := u.Port(); p != "" {
		port, convErr := strconv.Atoi(p)
		if convErr != nil {
			return fmt.Errorf("%w: port %q", ErrInvalidDatabaseURL, p)
		}
		c.PostgresPort = port
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		c.PostgresDBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// Validate checks configuration required for serving. Fail-fast at startup.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.CookieSecret == "" {
		return ErrMissingCookieSecret
	}
	if len(c.CookieSecret) < minCookieSecretLen {
		return fmt.Errorf("%w: need at least %d bytes, got %d",
			ErrInvalidCookieSecret, minCookieSecretLen, len(c.CookieSecret))
	}
	if c.ModelName == "" || !strings.Contains(c.ModelName, "/") {
		return fmt.Errorf("%w: %q (expected provider-qualified name)", ErrInvalidModelName, c.ModelName)
	}
	if c.EmbedderModel == "" {
		return ErrInvalidEmbedderModel
	}
	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	return nil
}

// PostgresURL returns the connection string in URL form (for migrations).
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
