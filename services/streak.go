package services

import "time"

// CalendarDate truncates now to its calendar day in loc, returned as
// midnight UTC so date equality is a plain Equal and the value maps onto a
// SQL date column. Every claim uses the same fixed reference location; the
// device's local timezone never enters the computation, so two devices of
// one account can never disagree about what "today" is.
func CalendarDate(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StreakResult is the Streak Tracker's verdict for a prospective claim.
type StreakResult struct {
	IsNewClaimToday    bool
	NewConsecutiveDays int
}

// TrackStreak decides whether a claim at "today" is new and what the streak
// becomes. Pure: no I/O, fed from the stored projection by the reward ledger.
//
//	lastClaim == today     -> not new (already claimed)
//	lastClaim == yesterday -> streak continues
//	anything else          -> streak restarts at 1
func TrackStreak(today time.Time, lastClaim *time.Time, consecutiveDays int) StreakResult {
	if lastClaim == nil {
		return StreakResult{IsNewClaimToday: true, NewConsecutiveDays: 1}
	}
	switch {
	case lastClaim.Equal(today):
		return StreakResult{IsNewClaimToday: false, NewConsecutiveDays: consecutiveDays}
	case lastClaim.Equal(today.AddDate(0, 0, -1)):
		return StreakResult{IsNewClaimToday: true, NewConsecutiveDays: consecutiveDays + 1}
	default:
		return StreakResult{IsNewClaimToday: true, NewConsecutiveDays: 1}
	}
}
