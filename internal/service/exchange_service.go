package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/foundrynet/telegram-login-service/internal/domain"
	"github.com/foundrynet/telegram-login-service/internal/observability"
	"github.com/foundrynet/telegram-login-service/internal/repository"
	"github.com/foundrynet/telegram-login-service/internal/security"
)

const (
	StatusPending  = "pending"
	StatusComplete = "complete"
	StatusExpired  = "expired"
	StatusUsed     = "used"
)

type TelegramData struct {
	ChatID    int64  `json:"chat_id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// StatusResult is the exchange's answer to one poll. Payload fields are
// set only when Status is complete, and only for the single winning poll.
type StatusResult struct {
	Status         string
	Email          string
	UserID         string
	SecurePassword string
	Telegram       *TelegramData
}

// ExchangeService answers "is this token done yet" and drains the
// completion payload at most once per token.
type ExchangeService struct {
	tokens repository.LoginTokenRepository
	users  repository.UserRepository
	logger *slog.Logger
	maxAge time.Duration
}

func NewExchangeService(tokens repository.LoginTokenRepository, users repository.UserRepository, logger *slog.Logger, maxAge time.Duration) *ExchangeService {
	return &ExchangeService{tokens: tokens, users: users, logger: logger, maxAge: maxAge}
}

func (s *ExchangeService) CheckStatus(ctx context.Context, token string) (*StatusResult, error) {
	if !security.ValidLoginToken(token) {
		observability.RecordLoginPoll("invalid_token")
		return nil, ErrInvalidToken
	}

	t, err := s.tokens.FindByToken(token)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			// The record may not have propagated yet, or the client is
			// polling ahead of its own registration call. Recoverable.
			observability.RecordLoginPoll(StatusPending)
			return &StatusResult{Status: StatusPending}, nil
		}
		return nil, err
	}

	if t.ExpiredAt(time.Now(), s.maxAge) {
		if err := s.tokens.Delete(token); err != nil {
			s.logger.Warn("delete expired token", "error", err)
		}
		observability.RecordLoginPoll(StatusExpired)
		return &StatusResult{Status: StatusExpired}, nil
	}
	if t.Used {
		observability.RecordLoginPoll(StatusUsed)
		return &StatusResult{Status: StatusUsed}, nil
	}
	if t.Status != domain.LoginTokenStatusComplete {
		observability.RecordLoginPoll(StatusPending)
		return &StatusResult{Status: StatusPending}, nil
	}

	consumed, err := s.tokens.Consume(token)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTokenUsed):
			// Lost the race against a concurrent poll.
			observability.RecordLoginPoll(StatusUsed)
			return &StatusResult{Status: StatusUsed}, nil
		case errors.Is(err, repository.ErrTokenNotReady), errors.Is(err, repository.ErrTokenNotFound):
			observability.RecordLoginPoll(StatusPending)
			return &StatusResult{Status: StatusPending}, nil
		}
		return nil, err
	}

	result := &StatusResult{
		Status:         StatusComplete,
		Email:          consumed.Email,
		SecurePassword: consumed.SecurePassword,
	}
	if consumed.ChatID != nil {
		result.Telegram = &TelegramData{
			ChatID:    *consumed.ChatID,
			Username:  consumed.Username,
			FirstName: consumed.FirstName,
		}
	}
	if consumed.UserID != nil {
		user, err := s.users.FindByID(*consumed.UserID)
		if err != nil {
			// The payload was already consumed; failing now would lose
			// it. Ship what the token carries.
			s.logger.Error("resolve user for consumed token", "error", err)
		} else {
			result.UserID = user.PublicID
		}
	}

	observability.RecordLoginPoll(StatusComplete)
	observability.RecordExchangeDelivery()
	return result, nil
}
