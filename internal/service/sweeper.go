package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/foundrynet/telegram-login-service/internal/repository"
)

// Sweeper periodically removes expired login tokens and sessions so
// stale rows never linger beyond their window.
type Sweeper struct {
	tokens   repository.LoginTokenRepository
	sessions repository.SessionRepository
	logger   *slog.Logger
	interval time.Duration
	maxAge   time.Duration
}

func NewSweeper(tokens repository.LoginTokenRepository, sessions repository.SessionRepository, logger *slog.Logger, interval, maxAge time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{tokens: tokens, sessions: sessions, logger: logger, interval: interval, maxAge: maxAge}
}

// Run blocks until ctx is done, sweeping on every tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	tokens, err := s.tokens.CleanupExpired(time.Now(), s.maxAge)
	if err != nil {
		s.logger.Warn("sweep login tokens", "error", err)
	}
	sessions, err := s.sessions.CleanupExpired()
	if err != nil {
		s.logger.Warn("sweep sessions", "error", err)
	}
	if tokens > 0 || sessions > 0 {
		s.logger.Info("swept expired records", "login_tokens", tokens, "sessions", sessions)
	}
}
