package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/foundrynet/telegram-login-service/internal/config"
	"github.com/foundrynet/telegram-login-service/internal/observability"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "telegram-login-server",
		Short: "Out-of-band Telegram login handshake service",
		Long: "Serves the Telegram login handshake: token registration, the\n" +
			"bot-facing confirmation endpoint, the polling exchange API and\n" +
			"session establishment.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	slog.SetDefault(logger)

	a, err := InitializeApp(ctx, cfg, logger, loggerProvider)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}

	logger.Info("starting telegram login service",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"bot_username", cfg.BotUsername,
	)
	return a.Run(ctx)
}
