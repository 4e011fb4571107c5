package service

import (
	"time"

	"github.com/foundrynet/telegram-login-service/internal/domain"
	"github.com/foundrynet/telegram-login-service/internal/repository"
	"github.com/foundrynet/telegram-login-service/internal/security"
)

const (
	RegisterStatusCreated = "created"
	RegisterStatusExists  = "exists"
)

// TokenRegistry mints and pre-registers login correlation tokens before
// the browser hands them off to the bot deep link.
type TokenRegistry struct {
	tokens repository.LoginTokenRepository
	ttl    time.Duration
}

func NewTokenRegistry(tokens repository.LoginTokenRepository, ttl time.Duration) *TokenRegistry {
	return &TokenRegistry{tokens: tokens, ttl: ttl}
}

// CreateToken mints a fresh canonical token and persists it pending.
func (s *TokenRegistry) CreateToken() (*domain.LoginToken, error) {
	token, err := security.NewLoginToken()
	if err != nil {
		return nil, err
	}
	t := &domain.LoginToken{
		Token:     token,
		Status:    domain.LoginTokenStatusPending,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	if _, err := s.tokens.Register(t); err != nil {
		return nil, err
	}
	return t, nil
}

// RegisterToken is the idempotent variant used by clients that mint the
// token locally. Re-registering an existing token is success, not error.
func (s *TokenRegistry) RegisterToken(token string) (status string, expiresAt time.Time, err error) {
	if !security.ValidLoginToken(token) {
		return "", time.Time{}, ErrInvalidToken
	}
	t := &domain.LoginToken{
		Token:     token,
		Status:    domain.LoginTokenStatusPending,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	created, err := s.tokens.Register(t)
	if err != nil {
		return "", time.Time{}, err
	}
	if !created {
		existing, err := s.tokens.FindByToken(token)
		if err != nil {
			return "", time.Time{}, err
		}
		return RegisterStatusExists, existing.ExpiresAt, nil
	}
	return RegisterStatusCreated, t.ExpiresAt, nil
}
