package domain

import "time"

const (
	LoginTokenStatusPending  = "pending"
	LoginTokenStatusComplete = "complete"
)

// LoginToken correlates one browser login attempt with its out-of-band
// Telegram confirmation. Mutated exactly twice: pending -> complete by the
// confirmation receiver, complete -> used by the exchange.
type LoginToken struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Token          string     `gorm:"size:128;uniqueIndex;not null" json:"token"`
	Status         string     `gorm:"size:16;not null;default:pending" json:"status"`
	Used           bool       `gorm:"not null;default:false" json:"used"`
	UserID         *uint      `gorm:"index" json:"user_id,omitempty"`
	Email          string     `gorm:"size:255" json:"email,omitempty"`
	SecurePassword string     `gorm:"size:128" json:"-"`
	ChatID         *int64     `gorm:"index" json:"chat_id,omitempty"`
	Username       string     `gorm:"size:255" json:"username,omitempty"`
	FirstName      string     `gorm:"size:255" json:"first_name,omitempty"`
	CallerIP       string     `gorm:"size:64" json:"-"`
	UserAgent      string     `gorm:"size:512" json:"-"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ExpiresAt      time.Time  `gorm:"index;not null" json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ExpiredAt reports whether the token is stale at the given instant,
// by either the absolute deadline or the age bound.
func (t *LoginToken) ExpiredAt(now time.Time, maxAge time.Duration) bool {
	if !now.Before(t.ExpiresAt) {
		return true
	}
	return now.Sub(t.CreatedAt) >= maxAge
}
