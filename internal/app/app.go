package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/foundrynet/telegram-login-service/internal/config"
	"github.com/foundrynet/telegram-login-service/internal/observability"
	"github.com/foundrynet/telegram-login-service/internal/service"

	"golang.org/x/sync/errgroup"
)

// App aggregates the server's long-running pieces: the HTTP listener,
// the expired-record sweeper and the observability runtime.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Sweeper       *service.Sweeper
	Observability *observability.Runtime
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, sweeper *service.Sweeper, runtime *observability.Runtime) *App {
	return &App{Config: cfg, Logger: logger, Server: server, Sweeper: sweeper, Observability: runtime}
}

// Run serves until ctx is cancelled, then drains and shuts everything
// down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := a.Sweeper.Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("http shutdown", "error", err)
		}
		if err := a.Observability.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("observability shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}
