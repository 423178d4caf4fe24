package models

import "time"

// DailyClaimRecord is the once-per-day claim event. The composite unique
// index on (account_id, claim_date) is the concurrency anchor: a second
// claim for the same calendar day fails at insert, whatever the callers
// were doing at the application layer.
type DailyClaimRecord struct {
	ID                     string    `gorm:"primaryKey;type:uuid" json:"id"`
	AccountID              string    `gorm:"type:uuid;not null;uniqueIndex:idx_claim_account_date" json:"account_id"`
	ClaimDate              time.Time `gorm:"type:date;not null;uniqueIndex:idx_claim_account_date" json:"claim_date"`
	ConsecutiveDaysAtClaim int       `gorm:"not null" json:"consecutive_days_at_claim"`
	TokensEarned           int64     `gorm:"not null" json:"tokens_earned"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
}
