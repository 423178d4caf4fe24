package models

import "time"

// TransactionKind tags what earned (or spent) the tokens.
type TransactionKind string

const (
	TransactionKindDailyReward   TransactionKind = "daily_reward"
	TransactionKindReferrerBonus TransactionKind = "referrer_bonus"
	TransactionKindRefereeBonus  TransactionKind = "referee_bonus"
	TransactionKindAdjustment    TransactionKind = "adjustment"
)

// TokenTransaction is the append-only balance ledger. Rows are never updated
// or deleted; for any account the sum of Amount must equal the cached
// Account.TokenBalance.
type TokenTransaction struct {
	ID          string          `gorm:"primaryKey;type:uuid" json:"id"`
	AccountID   string          `gorm:"type:uuid;not null;index" json:"account_id"`
	Amount      int64           `gorm:"not null" json:"amount"` // signed delta
	Kind        TransactionKind `gorm:"type:varchar(32);not null" json:"kind"`
	ReferenceID string          `gorm:"index" json:"reference_id"` // claim/referral/... row that earned it
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
