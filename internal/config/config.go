package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        int
	Environment string

	DatabaseDSN    string
	DBMaxOpenConns int
	DBMaxIdleConns int

	RedisAddr     string
	RedisPassword string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	SessionTTL  time.Duration

	BotUsername      string
	BotToken         string
	BotWebhookSecret string

	LoginTokenTTL    time.Duration
	LoginTokenMaxAge time.Duration
	CleanupInterval  time.Duration

	ConfirmRateLimit  int
	ConfirmRateWindow time.Duration

	CORSOrigins []string

	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELEnvironment           string
	OTELMetricsExportInterval time.Duration

	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment and validates it.
func Load(ctx context.Context) (*Config, error) {
	env := getEnv("ENVIRONMENT", "development")

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		Environment: env,

		DatabaseDSN:    getEnv("DATABASE_DSN", buildPostgresDSN()),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "telegram-login-service"),
		JWTAudience: getEnv("JWT_AUDIENCE", "foundrynet"),
		SessionTTL:  getEnvDuration("SESSION_TTL", 24*time.Hour),

		BotUsername:      getEnv("BOT_USERNAME", ""),
		BotToken:         getEnv("BOT_TOKEN", ""),
		BotWebhookSecret: getEnv("BOT_WEBHOOK_SECRET", ""),

		LoginTokenTTL:    getEnvDuration("LOGIN_TOKEN_TTL", 20*time.Minute),
		LoginTokenMaxAge: getEnvDuration("LOGIN_TOKEN_MAX_AGE", 20*time.Minute),
		CleanupInterval:  getEnvDuration("CLEANUP_INTERVAL", 5*time.Minute),

		ConfirmRateLimit:  getEnvInt("CONFIRM_RATE_LIMIT", 10),
		ConfirmRateWindow: getEnvDuration("CONFIRM_RATE_WINDOW", time.Hour),

		CORSOrigins: splitAndTrim(getEnv("CORS_ORIGINS", "http://localhost:3000")),

		OTELMetricsEnabled:        getEnvBool("OTEL_METRICS_ENABLED", false),
		OTELTracesEnabled:         getEnvBool("OTEL_TRACES_ENABLED", false),
		OTELLogsEnabled:           getEnvBool("OTEL_LOGS_ENABLED", false),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "telegram-login-service"),
		OTELEnvironment:           getEnv("OTEL_ENVIRONMENT", env),
		OTELMetricsExportInterval: getEnvDuration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		err = fmt.Errorf("validate config: %w", err)
		recordConfigValidationEvent(ctx, env, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(ctx, env, "success", "none")
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Environment == "production" {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if c.BotWebhookSecret == "" {
			return fmt.Errorf("BOT_WEBHOOK_SECRET is required in production")
		}
	}
	if c.BotUsername == "" {
		return fmt.Errorf("BOT_USERNAME is required")
	}
	if c.LoginTokenTTL < 15*time.Minute || c.LoginTokenTTL > 30*time.Minute {
		return fmt.Errorf("LOGIN_TOKEN_TTL must be between 15m and 30m, got %s", c.LoginTokenTTL)
	}
	if c.LoginTokenMaxAge < c.LoginTokenTTL {
		return fmt.Errorf("LOGIN_TOKEN_MAX_AGE must be at least LOGIN_TOKEN_TTL")
	}
	if c.ConfirmRateLimit <= 0 {
		return fmt.Errorf("CONFIRM_RATE_LIMIT must be positive")
	}
	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}
	return nil
}

func buildPostgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "login")
	password := getEnv("POSTGRES_PASSWORD", "login")
	dbName := getEnv("POSTGRES_DB", "login")
	sslMode := getEnv("POSTGRES_SSLMODE", "disable")
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbName, sslMode)
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
