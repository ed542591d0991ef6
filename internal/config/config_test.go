package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal("Failed to load config:", err)
	}

	if cfg.SupabaseURL != PlaceholderURL {
		t.Errorf("Expected placeholder URL, got %s", cfg.SupabaseURL)
	}
	if !cfg.UsingPlaceholders() {
		t.Error("Expected placeholder config to be reported")
	}
	if !cfg.AutoRefreshToken {
		t.Error("Expected auto refresh to default to true")
	}
	if cfg.AccessTokenTTL != time.Hour {
		t.Errorf("Expected 1h access token TTL, got %s", cfg.AccessTokenTTL)
	}
	if cfg.MailgunEnabled() {
		t.Error("Expected mailgun to be disabled without credentials")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "real-key")
	t.Setenv("AUTH_VERBOSE_LOGGING", "true")
	t.Setenv("ENVIRONMENT", "Development")

	cfg, err := Load()
	if err != nil {
		t.Fatal("Failed to load config:", err)
	}

	if cfg.SupabaseURL != "https://abc.supabase.co" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.SupabaseURL)
	}
	if cfg.UsingPlaceholders() {
		t.Error("Expected real credentials not to be reported as placeholders")
	}
	if !cfg.AuthVerboseLogging {
		t.Error("Expected verbose auth logging to be enabled")
	}
	if !cfg.IsDevelopment() {
		t.Error("Expected development environment")
	}
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL", "soon")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Errorf("Expected parse env prefix, got %v", err)
	}
}

func TestCheckSigningSecret(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal("Failed to load config:", err)
	}
	if !cfg.UsingPlaceholderSecret() {
		t.Fatal("Expected the default secret to be the placeholder")
	}
	if err := cfg.CheckSigningSecret(); !errors.Is(err, ErrPlaceholderSecret) {
		t.Errorf("Expected production with the placeholder secret to be refused, got %v", err)
	}

	cfg.Environment = "development"
	if err := cfg.CheckSigningSecret(); err != nil {
		t.Errorf("Expected development to allow the placeholder, got %v", err)
	}

	cfg.Environment = "production"
	cfg.JWTSecret = ""
	if err := cfg.CheckSigningSecret(); !errors.Is(err, ErrPlaceholderSecret) {
		t.Errorf("Expected an empty secret to be refused, got %v", err)
	}

	cfg.JWTSecret = "a-real-secret"
	if err := cfg.CheckSigningSecret(); err != nil {
		t.Errorf("Expected a real secret to pass, got %v", err)
	}
}
