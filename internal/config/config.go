package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	PlaceholderURL     = "https://placeholder-project.supabase.co"
	PlaceholderAnonKey = "placeholder-key"

	PlaceholderJWTSecret = "your-jwt-secret-change-this-in-production"
)

// ErrPlaceholderSecret is returned by CheckSigningSecret outside development.
var ErrPlaceholderSecret = errors.New("JWT_SECRET is unset or the placeholder, refusing to sign tokens outside development")

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"production"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`

	// Client side
	SupabaseURL        string `env:"SUPABASE_URL" envDefault:"https://placeholder-project.supabase.co"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY" envDefault:"placeholder-key"`
	SessionFile        string `env:"SESSION_FILE"`
	AutoRefreshToken   bool   `env:"AUTO_REFRESH_TOKEN" envDefault:"true"`
	AuthVerboseLogging bool   `env:"AUTH_VERBOSE_LOGGING" envDefault:"false"`

	// Dev backend service
	DatabasePath    string        `env:"DATABASE_PATH" envDefault:"stockroom.db"`
	Port            string        `env:"PORT" envDefault:"8080"`
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"your-jwt-secret-change-this-in-production"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:5173"`

	MailgunDomain      string `env:"MAILGUN_DOMAIN"`
	MailgunAPIKey      string `env:"MAILGUN_API_KEY"`
	MailgunSenderEmail string `env:"MAILGUN_SENDER_EMAIL" envDefault:"noreply@stockroom.local"`
	MailgunSenderName  string `env:"MAILGUN_SENDER_NAME" envDefault:"Stockroom"`
}

// Load reads a .env file when one exists, then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.SupabaseURL = strings.TrimRight(cfg.SupabaseURL, "/")
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// UsingPlaceholders reports whether the backend URL or key were left at the
// development fallbacks. The client is still built; calls fail at runtime.
func (c *Config) UsingPlaceholders() bool {
	return c.SupabaseURL == PlaceholderURL || c.SupabaseAnonKey == PlaceholderAnonKey
}

func (c *Config) UsingPlaceholderSecret() bool {
	return c.JWTSecret == "" || c.JWTSecret == PlaceholderJWTSecret
}

// CheckSigningSecret fails when the dev server would sign tokens with the
// placeholder secret anywhere but development.
func (c *Config) CheckSigningSecret() error {
	if c.UsingPlaceholderSecret() && !c.IsDevelopment() {
		return ErrPlaceholderSecret
	}
	return nil
}

func (c *Config) MailgunEnabled() bool {
	return c.MailgunDomain != "" && c.MailgunAPIKey != ""
}
