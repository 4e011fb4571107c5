package domain

import "time"

// User is the durable account record. TelegramChatID carries a unique
// index so repeated confirmations by the same chat identity always
// resolve to the same row.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PublicID       string    `gorm:"size:36;uniqueIndex;not null" json:"public_id"`
	Email          string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash   string    `gorm:"size:128;not null" json:"-"`
	TelegramChatID *int64    `gorm:"uniqueIndex" json:"telegram_chat_id,omitempty"`
	Status         string    `gorm:"size:16;not null;default:active" json:"status"`
	Profile        *Profile  `json:"profile,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Profile holds the channel metadata captured at confirmation time.
// Username and first name track the latest confirmation.
type Profile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Username  string    `gorm:"size:255" json:"username,omitempty"`
	FirstName string    `gorm:"size:255" json:"first_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
