package models

import "time"

// BadgeRequirement is the metric a badge rule compares against.
type BadgeRequirement string

const (
	RequirementStreakDays    BadgeRequirement = "streak_days"
	RequirementFortunesSent  BadgeRequirement = "fortunes_sent"
	RequirementFirstPurchase BadgeRequirement = "first_purchase"
)

// BadgeRule is one row of the static rule table: requirement kind plus
// threshold, keyed by badge code. New badges are new rows, not new branches.
type BadgeRule struct {
	Key         string
	Name        string
	Description string
	Requirement BadgeRequirement
	Threshold   int64
}

// BadgeRules is the authoritative rule table.
var BadgeRules = []BadgeRule{
	{
		Key:         "STREAK_7",
		Name:        "Devoted Seeker",
		Description: "Claimed the daily reward 7 days in a row",
		Requirement: RequirementStreakDays,
		Threshold:   7,
	},
	{
		Key:         "STREAK_30",
		Name:        "Moon Cycle",
		Description: "Claimed the daily reward 30 days in a row",
		Requirement: RequirementStreakDays,
		Threshold:   30,
	},
	{
		Key:         "FIRST_FORTUNE",
		Name:        "First Reading",
		Description: "Sent your first fortune request",
		Requirement: RequirementFortunesSent,
		Threshold:   1,
	},
	{
		Key:         "FORTUNE_50",
		Name:        "Oracle's Regular",
		Description: "Sent 50 fortune requests",
		Requirement: RequirementFortunesSent,
		Threshold:   50,
	},
	{
		Key:         "FIRST_PURCHASE",
		Name:        "Patron of the Arts",
		Description: "Made your first purchase",
		Requirement: RequirementFirstPurchase,
		Threshold:   1,
	},
}

// RuleForKey looks up a badge rule by its key.
func RuleForKey(key string) (BadgeRule, bool) {
	for _, r := range BadgeRules {
		if r.Key == key {
			return r, true
		}
	}
	return BadgeRule{}, false
}

// BadgeGrant is an awarded badge. The composite unique index on
// (account_id, badge_key) makes grants idempotent under races.
type BadgeGrant struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	AccountID string    `gorm:"type:uuid;not null;uniqueIndex:idx_grant_account_badge" json:"account_id"`
	BadgeKey  string    `gorm:"not null;uniqueIndex:idx_grant_account_badge" json:"badge_key"`
	EarnedAt  time.Time `gorm:"not null" json:"earned_at"`
	Displayed bool      `gorm:"not null;default:false" json:"displayed"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// BadgeCatalogEntry is display metadata for a badge (name, copy, icon asset).
// The rule table above stays the behavioural source of truth; catalog rows
// only decorate it for clients.
type BadgeCatalogEntry struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	BadgeKey    string    `gorm:"uniqueIndex;not null" json:"badge_key"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	IconURL     string    `gorm:"type:text" json:"icon_url"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
