package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foundrynet/telegram-login-service/internal/domain"
	"github.com/foundrynet/telegram-login-service/internal/observability"
	"github.com/foundrynet/telegram-login-service/internal/repository"
	"github.com/foundrynet/telegram-login-service/internal/security"

	"github.com/google/uuid"
)

// LoginNotifier acks the confirming human back in the chat. Optional;
// failures never fail the confirmation.
type LoginNotifier interface {
	LoginApproved(ctx context.Context, chatID int64, firstName string) error
}

type ConfirmRequest struct {
	Token     string
	ChatID    int64
	Username  string
	FirstName string
	CallerIP  string
	UserAgent string
}

type ConfirmResult struct {
	UserID    string
	Email     string
	ChatID    int64
	Username  string
	FirstName string
}

// ConfirmService is the trust boundary of the handshake: it is invoked
// by the bot backend once a human approved the login in the chat, and
// whatever it accepts becomes an authenticated identity.
type ConfirmService struct {
	tokens      repository.LoginTokenRepository
	users       repository.UserRepository
	limiter     ConfirmRateLimiter
	notifier    LoginNotifier
	logger      *slog.Logger
	emailDomain string
	maxAge      time.Duration
}

func NewConfirmService(
	tokens repository.LoginTokenRepository,
	users repository.UserRepository,
	limiter ConfirmRateLimiter,
	notifier LoginNotifier,
	logger *slog.Logger,
	emailDomain string,
	maxAge time.Duration,
) *ConfirmService {
	if emailDomain == "" {
		emailDomain = "telegram.foundrynet.dev"
	}
	return &ConfirmService{
		tokens:      tokens,
		users:       users,
		limiter:     limiter,
		notifier:    notifier,
		logger:      logger,
		emailDomain: emailDomain,
		maxAge:      maxAge,
	}
}

func (s *ConfirmService) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	// Format validation comes before the rate limiter so a malformed
	// token is always reported as such, whatever the counter state.
	if !security.ValidLoginToken(req.Token) {
		observability.RecordLoginConfirm("invalid_token")
		return nil, ErrInvalidToken
	}
	if req.ChatID <= 0 {
		observability.RecordLoginConfirm("invalid_chat")
		return nil, ErrInvalidToken
	}

	allowed, err := s.limiter.Allow(ctx, req.CallerIP, req.ChatID)
	if err != nil {
		// Limiter backend trouble does not block a human-driven,
		// low-volume endpoint; log and continue.
		s.logger.Warn("confirm rate limiter unavailable", "error", err)
		allowed = true
	}
	if !allowed {
		observability.RecordRateLimitDecision(ctx, "confirm", "deny")
		observability.RecordLoginConfirm("rate_limited")
		return nil, ErrRateLimited
	}
	observability.RecordRateLimitDecision(ctx, "confirm", "allow")

	t, err := s.tokens.FindByToken(req.Token)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			// Tokens must be pre-registered; confirming an unknown one
			// is meaningless, never silently create it.
			observability.RecordLoginConfirm("unknown_token")
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if t.Used {
		observability.RecordLoginConfirm("used")
		return nil, ErrTokenAlreadyUsed
	}
	if t.ExpiredAt(time.Now(), s.maxAge) {
		if err := s.tokens.Delete(req.Token); err != nil {
			s.logger.Warn("delete expired token", "error", err)
		}
		observability.RecordLoginConfirm("expired")
		return nil, ErrTokenExpired
	}
	if t.Status == domain.LoginTokenStatusComplete {
		// Double tap in the chat; the first confirmation already
		// resolved the identity, answer idempotently.
		observability.RecordLoginConfirm("duplicate")
		return s.resultFromToken(t)
	}

	user, password, err := s.resolveUser(req)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.MarkComplete(req.Token, repository.CompletionRecord{
		UserID:         user.ID,
		Email:          user.Email,
		SecurePassword: password,
		ChatID:         req.ChatID,
		Username:       req.Username,
		FirstName:      req.FirstName,
		CallerIP:       req.CallerIP,
		UserAgent:      req.UserAgent,
	}); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.LoginApproved(ctx, req.ChatID, req.FirstName); err != nil {
			s.logger.Warn("login approved notification failed", "chat_id", req.ChatID, "error", err)
		}
	}

	observability.RecordLoginConfirm("success")
	s.logger.Info("login confirmed", "chat_id", req.ChatID, "user_id", user.PublicID)
	return &ConfirmResult{
		UserID:    user.PublicID,
		Email:     user.Email,
		ChatID:    req.ChatID,
		Username:  req.Username,
		FirstName: req.FirstName,
	}, nil
}

// resolveUser finds or creates the durable user for a chat identity.
// Chat-id lookup is authoritative; the derived-email lookup only covers
// legacy rows created before chat ids were stored. An existing user's
// email is never recomputed.
func (s *ConfirmService) resolveUser(req ConfirmRequest) (*domain.User, string, error) {
	password, err := security.NewLoginPassword()
	if err != nil {
		return nil, "", err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	user, err := s.users.FindByChatID(req.ChatID)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, "", err
	}
	if err != nil {
		derived := s.deriveLoginEmail(req.ChatID)
		user, err = s.users.FindByEmail(derived)
		if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
			return nil, "", err
		}
		if err == nil {
			if err := s.users.SetChatID(user.ID, req.ChatID); err != nil {
				return nil, "", err
			}
		} else {
			user = &domain.User{
				PublicID:       uuid.NewString(),
				Email:          derived,
				PasswordHash:   hash,
				TelegramChatID: &req.ChatID,
				Status:         "active",
				Profile: &domain.Profile{
					Username:  req.Username,
					FirstName: req.FirstName,
				},
			}
			if err := s.users.Create(user); err != nil {
				return nil, "", err
			}
			return user, password, nil
		}
	}

	// Existing user: rotate the one-time credential and refresh the
	// profile with the latest channel metadata.
	if err := s.users.UpdateCredentials(user.ID, hash); err != nil {
		return nil, "", err
	}
	if err := s.users.UpsertProfile(&domain.Profile{
		UserID:    user.ID,
		Username:  req.Username,
		FirstName: req.FirstName,
	}); err != nil {
		return nil, "", err
	}
	return user, password, nil
}

func (s *ConfirmService) resultFromToken(t *domain.LoginToken) (*ConfirmResult, error) {
	if t.UserID == nil {
		return nil, ErrTokenNotFound
	}
	user, err := s.users.FindByID(*t.UserID)
	if err != nil {
		return nil, err
	}
	var chatID int64
	if t.ChatID != nil {
		chatID = *t.ChatID
	}
	return &ConfirmResult{
		UserID:    user.PublicID,
		Email:     t.Email,
		ChatID:    chatID,
		Username:  t.Username,
		FirstName: t.FirstName,
	}, nil
}

func (s *ConfirmService) deriveLoginEmail(chatID int64) string {
	return fmt.Sprintf("tg-%d@%s", chatID, s.emailDomain)
}
