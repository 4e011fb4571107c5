package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/foundrynet/telegram-login-service/internal/domain"
	"github.com/foundrynet/telegram-login-service/internal/observability"
	"github.com/foundrynet/telegram-login-service/internal/repository"
	"github.com/foundrynet/telegram-login-service/internal/security"
)

type EstablishResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        *domain.User
}

// SessionService trades a delivered exchange payload for a signed access
// token plus a server-side session record.
type SessionService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	jwtMgr   *security.JWTManager
	ttl      time.Duration
}

func NewSessionService(users repository.UserRepository, sessions repository.SessionRepository, jwtMgr *security.JWTManager, ttl time.Duration) *SessionService {
	return &SessionService{users: users, sessions: sessions, jwtMgr: jwtMgr, ttl: ttl}
}

func (s *SessionService) Establish(ctx context.Context, email, password, ua, ip string) (*EstablishResult, error) {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordSessionEstablishment("invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !security.VerifyPassword(user.PasswordHash, password) {
		observability.RecordSessionEstablishment("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	token, jti, err := s.jwtMgr.SignAccessToken(user.ID, user.Email, s.ttl)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(s.ttl)
	if err := s.sessions.Create(&domain.Session{
		UserID:    user.ID,
		TokenID:   jti,
		UserAgent: ua,
		IP:        ip,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}

	observability.RecordSessionEstablishment("success")
	return &EstablishResult{AccessToken: token, ExpiresAt: expiresAt, User: user}, nil
}

// UserFromClaims resolves the authenticated user behind parsed access
// token claims, checking the backing session is still live.
func (s *SessionService) UserFromClaims(ctx context.Context, claims *security.Claims) (*domain.User, error) {
	if _, err := s.sessions.FindActiveByTokenID(claims.ID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	id64, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.FindByID(uint(id64))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return user, nil
}

func (s *SessionService) Logout(ctx context.Context, userID uint) error {
	return s.sessions.RevokeByUserID(userID, "logout")
}
