package models

import (
	"time"

	"gorm.io/gorm"
)

// Account is the local entitlement projection of a profile-service user.
// Every field except ID and ReferralCode is derived from the event tables
// (daily_claim_records, token_transactions, trial_records, referral_records)
// and must stay reconstructable by replaying them.
type Account struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"` // profile service UUID
	Username     string `gorm:"index" json:"username"`
	ReferralCode string `gorm:"uniqueIndex;not null" json:"referral_code"`

	// Cached balance. Mutated only via additive increments alongside an
	// appended TokenTransaction, never read-modify-write.
	TokenBalance int64 `gorm:"not null;default:0" json:"token_balance"`

	// Streak projection (authoritative copy; device caches are hints only).
	LastLoginDate        *time.Time `gorm:"type:date" json:"last_login_date,omitempty"`
	ConsecutiveLoginDays int        `gorm:"not null;default:0" json:"consecutive_login_days"`

	// One-shot flags. Set true once, never cleared.
	TrialUsed    bool `gorm:"not null;default:false" json:"trial_used"`
	ReferralUsed bool `gorm:"not null;default:false" json:"referral_used"`

	// Metrics fed by the sync workers, consumed by the badge evaluator.
	TotalFortunesSent int64      `gorm:"not null;default:0" json:"total_fortunes_sent"`
	FirstPurchaseDate *time.Time `json:"first_purchase_date,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
