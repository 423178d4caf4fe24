package models

import "time"

// ReferralRecord tracks one-time invite-code redemptions. The unique index
// on referee_id enforces "redeem at most once per account, ever"; an account
// may appear as referrer any number of times.
type ReferralRecord struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID string    `gorm:"type:uuid;index;not null" json:"referrer_id"`
	RefereeID  string    `gorm:"type:uuid;uniqueIndex;not null" json:"referee_id"`
	Code       string    `gorm:"not null" json:"code"`
	UsedAt     time.Time `gorm:"not null" json:"used_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
