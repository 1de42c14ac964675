package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const dayMillis int64 = 24 * 60 * 60 * 1000

type Order struct {
	OrderID   string          `gorm:"primaryKey;size:64;not null"` // issued with the payment link
	UserID    int64           `gorm:"index;not null"`              // chat user id
	Plan      string          `gorm:"size:32;not null"`            // tariff code
	Days      int             `gorm:"not null"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency  string          `gorm:"size:8;not null"`
	Token     string          `gorm:"size:160"` // swb:<uid>:<days>:<mac>
	CreatedAt time.Time
	PaidAt    *time.Time // set once, never cleared
}

// WebhookEvent is an append-only record of a processed delivery.
type WebhookEvent struct {
	Provider    string `gorm:"primaryKey;size:32;not null"`
	EventID     string `gorm:"primaryKey;size:128;not null"`
	ProcessedAt time.Time
}

type Subscription struct {
	UserID          int64 `gorm:"primaryKey;autoIncrement:false"`
	ExpiresAtMillis int64 `gorm:"index;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ExpiresAt converts the stored epoch millis.
func (s *Subscription) ExpiresAt() time.Time {
	return time.UnixMilli(s.ExpiresAtMillis)
}

// Active reports whether the subscription runs past now.
func (s *Subscription) Active(now time.Time) bool {
	return s.ExpiresAtMillis > now.UnixMilli()
}

// DaysToMillis converts a granted duration.
func DaysToMillis(days int) int64 {
	return int64(days) * dayMillis
}

// Setting is a small key/value row, e.g. the cached group invite link.
type Setting struct {
	Name      string `gorm:"primaryKey;size:64;not null"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

const SettingGroupInviteURL = "group_invite_url"
