package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoadDefaultsForDevelopment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("BOT_USERNAME", "foundrynet_login_bot")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.LoginTokenTTL != 20*time.Minute {
		t.Fatalf("expected default token ttl 20m, got %s", cfg.LoginTokenTTL)
	}
	if cfg.LoginTokenMaxAge < cfg.LoginTokenTTL {
		t.Fatal("max age must cover the ttl")
	}
	if cfg.ConfirmRateLimit != 10 || cfg.ConfirmRateWindow != time.Hour {
		t.Fatalf("unexpected confirm rate defaults: %d/%s", cfg.ConfirmRateLimit, cfg.ConfirmRateWindow)
	}
	if len(cfg.CORSOrigins) == 0 {
		t.Fatal("expected at least one default CORS origin")
	}
}

func TestLoadRejectsMissingBotUsername(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("BOT_USERNAME", "")

	if _, err := Load(context.Background()); err == nil {
		t.Fatal("expected error without BOT_USERNAME")
	}
}

func TestValidateProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{
		Environment:       "production",
		BotUsername:       "foundrynet_login_bot",
		JWTSecret:         "short",
		LoginTokenTTL:     20 * time.Minute,
		LoginTokenMaxAge:  20 * time.Minute,
		ConfirmRateLimit:  10,
		ConfirmRateWindow: time.Hour,
		CORSOrigins:       []string{"https://foundrynet.dev"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected short JWT secret to be rejected in production")
	}

	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing bot webhook secret to be rejected in production")
	}

	cfg.BotWebhookSecret = "hook-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid production config, got %v", err)
	}
}

func TestValidateTokenTTLBounds(t *testing.T) {
	cfg := &Config{
		Environment:       "development",
		BotUsername:       "foundrynet_login_bot",
		LoginTokenTTL:     5 * time.Minute,
		LoginTokenMaxAge:  5 * time.Minute,
		ConfirmRateLimit:  10,
		ConfirmRateWindow: time.Hour,
		CORSOrigins:       []string{"http://localhost:3000"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected ttl below 15m to be rejected")
	}
	cfg.LoginTokenTTL = 45 * time.Minute
	cfg.LoginTokenMaxAge = 45 * time.Minute
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected ttl above 30m to be rejected")
	}
}

func TestClassifyConfigLoadError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "none", err: nil, want: "none"},
		{name: "validation", err: errors.New("validate config: BOT_USERNAME is required"), want: "validation"},
		{name: "parse", err: errors.New("parse LOGIN_TOKEN_TTL: invalid duration"), want: "parse"},
		{name: "other", err: errors.New("some other load error"), want: "load"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyConfigLoadError(tc.err); got != tc.want {
				t.Fatalf("classifyConfigLoadError()=%q want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeConfigProfile(t *testing.T) {
	if got := normalizeConfigProfile("  ProD  "); got != "prod" {
		t.Fatalf("expected prod, got %q", got)
	}
	if got := normalizeConfigProfile("   "); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}
