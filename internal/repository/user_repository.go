package repository

import (
	"context"
	"errors"

	"github.com/foundrynet/telegram-login-service/internal/domain"
	"github.com/foundrynet/telegram-login-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	FindByID(id uint) (*domain.User, error)
	FindByChatID(chatID int64) (*domain.User, error)
	FindByEmail(email string) (*domain.User, error)
	Create(user *domain.User) error
	UpdateCredentials(userID uint, passwordHash string) error
	SetChatID(userID uint, chatID int64) error
	UpsertProfile(profile *domain.Profile) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByID(id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.Preload("Profile").First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "success")
	return &u, nil
}

func (r *GormUserRepository) FindByChatID(chatID int64) (*domain.User, error) {
	var u domain.User
	err := r.db.Preload("Profile").Where("telegram_chat_id = ?", chatID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", "find_by_chat_id", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "find_by_chat_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "find_by_chat_id", "success")
	return &u, nil
}

func (r *GormUserRepository) FindByEmail(email string) (*domain.User, error) {
	var u domain.User
	err := r.db.Preload("Profile").Where("email = ?", email).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", "find_by_email", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "find_by_email", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "find_by_email", "success")
	return &u, nil
}

func (r *GormUserRepository) Create(user *domain.User) error {
	err := r.db.Create(user).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "create", "success")
	return nil
}

func (r *GormUserRepository) UpdateCredentials(userID uint, passwordHash string) error {
	err := r.db.Model(&domain.User{}).
		Where("id = ?", userID).
		Update("password_hash", passwordHash).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "update_credentials", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "update_credentials", "success")
	return nil
}

func (r *GormUserRepository) SetChatID(userID uint, chatID int64) error {
	err := r.db.Model(&domain.User{}).
		Where("id = ? AND telegram_chat_id IS NULL", userID).
		Update("telegram_chat_id", chatID).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "set_chat_id", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "set_chat_id", "success")
	return nil
}

func (r *GormUserRepository) UpsertProfile(profile *domain.Profile) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "updated_at"}),
	}).Create(profile).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "upsert_profile", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "upsert_profile", "success")
	return nil
}
