package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/foundrynet/telegram-login-service/internal/config"
	"github.com/foundrynet/telegram-login-service/internal/http/handler"
	"github.com/foundrynet/telegram-login-service/internal/http/router"
	"github.com/foundrynet/telegram-login-service/internal/observability"
	"github.com/foundrynet/telegram-login-service/internal/repository"
	"github.com/foundrynet/telegram-login-service/internal/security"
	"github.com/foundrynet/telegram-login-service/internal/service"
	"github.com/foundrynet/telegram-login-service/internal/telegram"
)

func provideRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}

func provideDB(cfg *config.Config) (*gorm.DB, error) {
	return repository.Open(cfg)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
}

func provideConfirmRateLimiter(cfg *config.Config, logger *slog.Logger) service.ConfirmRateLimiter {
	policy := service.ConfirmRatePolicy{Limit: cfg.ConfirmRateLimit, Window: cfg.ConfirmRateWindow}
	if cfg.RedisAddr == "" {
		logger.Warn("confirm rate limiter is in-memory; counters reset on restart")
		return service.NewLocalConfirmRateLimiter(policy)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	return service.NewRedisConfirmRateLimiter(client, "confirm_rate", policy)
}

func provideLoginNotifier(cfg *config.Config) service.LoginNotifier {
	if cfg.BotToken == "" {
		return nil
	}
	return telegram.NewClient(cfg.BotToken)
}

func provideTokenRegistry(cfg *config.Config, tokens repository.LoginTokenRepository) *service.TokenRegistry {
	return service.NewTokenRegistry(tokens, cfg.LoginTokenTTL)
}

func provideConfirmService(
	cfg *config.Config,
	tokens repository.LoginTokenRepository,
	users repository.UserRepository,
	limiter service.ConfirmRateLimiter,
	notifier service.LoginNotifier,
	logger *slog.Logger,
) *service.ConfirmService {
	return service.NewConfirmService(tokens, users, limiter, notifier, logger, "", cfg.LoginTokenMaxAge)
}

func provideExchangeService(cfg *config.Config, tokens repository.LoginTokenRepository, users repository.UserRepository, logger *slog.Logger) *service.ExchangeService {
	return service.NewExchangeService(tokens, users, logger, cfg.LoginTokenMaxAge)
}

func provideSessionService(cfg *config.Config, users repository.UserRepository, sessions repository.SessionRepository, jwtMgr *security.JWTManager) *service.SessionService {
	return service.NewSessionService(users, sessions, jwtMgr, cfg.SessionTTL)
}

func provideSweeper(cfg *config.Config, tokens repository.LoginTokenRepository, sessions repository.SessionRepository, logger *slog.Logger) *service.Sweeper {
	return service.NewSweeper(tokens, sessions, logger, cfg.CleanupInterval, cfg.LoginTokenMaxAge)
}

func provideRouter(cfg *config.Config, h *handler.LoginHandler, jwtMgr *security.JWTManager, db *gorm.DB) http.Handler {
	return router.NewRouter(router.Dependencies{
		LoginHandler:     h,
		JWTManager:       jwtMgr,
		BotWebhookSecret: cfg.BotWebhookSecret,
		CORSOrigins:      cfg.CORSOrigins,
		APIRateLimitRPM:  120,
		PollRateLimitRPM: 300,
		ReadinessCheck: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		EnableOTelHTTP: cfg.OTELTracesEnabled,
	})
}

func provideServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
