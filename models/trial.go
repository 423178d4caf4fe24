package models

import "time"

// TrialStatus is the stored state of the single free-trial window.
type TrialStatus string

const (
	TrialStatusActive    TrialStatus = "ACTIVE"
	TrialStatusExpired   TrialStatus = "EXPIRED"
	TrialStatusConverted TrialStatus = "CONVERTED"
	TrialStatusCancelled TrialStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s TrialStatus) Terminal() bool {
	return s == TrialStatusExpired || s == TrialStatusConverted || s == TrialStatusCancelled
}

// TrialRecord is the one-per-account free trial. The unique index on
// account_id plus Account.TrialUsed make the trial non-repeatable: a record
// exists at most once and usedFlag is never cleared, including for cancelled
// or long-expired trials.
//
// The stored Status may lag reality between the natural end and the next
// sweep; readers must compute activity from EndDate vs now, not Status alone.
type TrialRecord struct {
	ID        string      `gorm:"primaryKey;type:uuid" json:"id"`
	AccountID string      `gorm:"type:uuid;not null;uniqueIndex" json:"account_id"`
	StartDate time.Time   `gorm:"not null" json:"start_date"`
	EndDate   time.Time   `gorm:"not null;index" json:"end_date"`
	Status    TrialStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	UsedFlag  bool        `gorm:"not null;default:true" json:"used_flag"`

	Timestamps
}

// ActiveAt is the authoritative "is premium on" check.
func (t *TrialRecord) ActiveAt(now time.Time) bool {
	return t.Status == TrialStatusActive && now.Before(t.EndDate)
}
