package repository

import (
	"context"
	"errors"
	"time"

	"github.com/foundrynet/telegram-login-service/internal/domain"
	"github.com/foundrynet/telegram-login-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTokenNotFound = errors.New("login token not found")
	ErrTokenNotReady = errors.New("login token not complete")
	ErrTokenUsed     = errors.New("login token already used")
)

type LoginTokenRepository interface {
	// Register inserts the token if it does not exist yet. Returns
	// created=false when the row was already there; both outcomes are
	// success for the caller.
	Register(t *domain.LoginToken) (created bool, err error)
	FindByToken(token string) (*domain.LoginToken, error)
	// MarkComplete flips pending -> complete and attaches the resolved
	// identity. Guarded on the current state so concurrent confirmations
	// cannot double-complete.
	MarkComplete(token string, res CompletionRecord) error
	// Consume flips complete -> used and returns the payload exactly
	// once. The losing side of a race gets ErrTokenUsed.
	Consume(token string) (*domain.LoginToken, error)
	Delete(token string) error
	CleanupExpired(now time.Time, maxAge time.Duration) (int64, error)
}

// CompletionRecord is what the confirmation receiver attaches to a token.
type CompletionRecord struct {
	UserID         uint
	Email          string
	SecurePassword string
	ChatID         int64
	Username       string
	FirstName      string
	CallerIP       string
	UserAgent      string
}

type GormLoginTokenRepository struct{ db *gorm.DB }

func NewLoginTokenRepository(db *gorm.DB) LoginTokenRepository {
	return &GormLoginTokenRepository{db: db}
}

func (r *GormLoginTokenRepository) Register(t *domain.LoginToken) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoNothing: true,
	}).Create(t)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "login_token", "register", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "login_token", "register", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormLoginTokenRepository) FindByToken(token string) (*domain.LoginToken, error) {
	var t domain.LoginToken
	err := r.db.Where("token = ?", token).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "login_token", "find_by_token", "not_found")
			return nil, ErrTokenNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "login_token", "find_by_token", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "login_token", "find_by_token", "success")
	return &t, nil
}

func (r *GormLoginTokenRepository) MarkComplete(token string, rec CompletionRecord) error {
	now := time.Now().UTC()
	res := r.db.Model(&domain.LoginToken{}).
		Where("token = ? AND status = ? AND used = ?", token, domain.LoginTokenStatusPending, false).
		Updates(map[string]any{
			"status":          domain.LoginTokenStatusComplete,
			"user_id":         rec.UserID,
			"email":           rec.Email,
			"secure_password": rec.SecurePassword,
			"chat_id":         rec.ChatID,
			"username":        rec.Username,
			"first_name":      rec.FirstName,
			"caller_ip":       rec.CallerIP,
			"user_agent":      rec.UserAgent,
			"completed_at":    now,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "login_token", "mark_complete", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "login_token", "mark_complete", "conflict")
		return ErrTokenNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "login_token", "mark_complete", "success")
	return nil
}

func (r *GormLoginTokenRepository) Consume(token string) (*domain.LoginToken, error) {
	var consumed *domain.LoginToken
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var t domain.LoginToken
		if err := tx.Where("token = ?", token).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenNotFound
			}
			return err
		}

		// Guarded update, not read-then-write: the WHERE clause decides
		// the winner when two pollers race on the same token.
		res := tx.Model(&domain.LoginToken{}).
			Where("token = ? AND status = ? AND used = ?", token, domain.LoginTokenStatusComplete, false).
			Updates(map[string]any{"used": true, "secure_password": ""})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if t.Used {
				return ErrTokenUsed
			}
			if t.Status != domain.LoginTokenStatusComplete {
				return ErrTokenNotReady
			}
			// Another transaction consumed it between our read and update.
			return ErrTokenUsed
		}
		t.Used = true
		consumed = &t
		return nil
	})
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, ErrTokenNotFound):
			outcome = "not_found"
		case errors.Is(err, ErrTokenUsed), errors.Is(err, ErrTokenNotReady):
			outcome = "conflict"
		}
		observability.RecordRepositoryOperation(context.Background(), "login_token", "consume", outcome)
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "login_token", "consume", "success")
	return consumed, nil
}

func (r *GormLoginTokenRepository) Delete(token string) error {
	err := r.db.Where("token = ?", token).Delete(&domain.LoginToken{}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "login_token", "delete", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "login_token", "delete", "success")
	return nil
}

func (r *GormLoginTokenRepository) CleanupExpired(now time.Time, maxAge time.Duration) (int64, error) {
	cutoff := now.Add(-maxAge)
	res := r.db.Where("expires_at <= ? OR created_at <= ? OR (used = ? AND updated_at <= ?)", now, cutoff, true, cutoff).
		Delete(&domain.LoginToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "login_token", "cleanup_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "login_token", "cleanup_expired", "success")
	return res.RowsAffected, nil
}
