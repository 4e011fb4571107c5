//go:build wireinject
// +build wireinject

package main

import (
	"context"
	"log/slog"

	"github.com/google/wire"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/foundrynet/telegram-login-service/internal/app"
	"github.com/foundrynet/telegram-login-service/internal/config"
	"github.com/foundrynet/telegram-login-service/internal/http/handler"
	"github.com/foundrynet/telegram-login-service/internal/repository"
)

func InitializeApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*app.App, error) {
	wire.Build(
		provideRuntime,
		provideDB,
		provideJWTManager,
		provideConfirmRateLimiter,
		provideLoginNotifier,
		provideTokenRegistry,
		provideConfirmService,
		provideExchangeService,
		provideSessionService,
		provideSweeper,
		provideRouter,
		provideServer,
		repository.NewLoginTokenRepository,
		repository.NewUserRepository,
		repository.NewSessionRepository,
		handler.NewLoginHandler,
		app.New,
	)
	return nil, nil
}
