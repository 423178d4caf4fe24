package services

import (
	"context"
	"errors"
	"log"
	"time"

	"fortune-entitlements-service/models"

	"github.com/google/uuid"
)

// Daily reward tiers. Days 1-6 of a streak pay the base reward, day 7 pays
// the bonus, and the cycle repeats: days 8-13 pay base again, day 14 the
// bonus, and so on.
const (
	BaseDailyReward  int64 = 1
	BonusDailyReward int64 = 2
	rewardCycleDays        = 7
)

// RewardForDay returns the payout for the given consecutive-day count.
func RewardForDay(consecutiveDays int) int64 {
	if consecutiveDays < 1 {
		consecutiveDays = 1
	}
	if ((consecutiveDays-1)%rewardCycleDays)+1 == rewardCycleDays {
		return BonusDailyReward
	}
	return BaseDailyReward
}

// RewardLedgerService performs the idempotent daily claim: validate
// once-per-day, compute the tier, write the immutable claim + ledger rows and
// credit the balance in one unit.
type RewardLedgerService struct {
	Store    Store
	Badges   *BadgeService
	Location *time.Location
}

func NewRewardLedgerService(store Store, badges *BadgeService, loc *time.Location) *RewardLedgerService {
	if loc == nil {
		loc = time.UTC
	}
	return &RewardLedgerService{Store: store, Badges: badges, Location: loc}
}

// ClaimResult is the caller-facing outcome of a claim. On
// ALREADY_CLAIMED_TODAY it reflects the existing record, unchanged balance
// included, so retries and second devices see the same shape either way.
type ClaimResult struct {
	ConsecutiveDays int   `json:"consecutive_days"`
	TokensEarned    int64 `json:"tokens_earned"`
	TotalBalance    int64 `json:"total_balance"`
}

// ClaimDailyReward credits today's login reward exactly once per calendar
// day. The claim row's uniqueness constraint is the gate: whatever this
// method concluded from the cached projection, a concurrent or replayed
// claim dies at the insert and is reported as ALREADY_CLAIMED_TODAY.
func (s *RewardLedgerService) ClaimDailyReward(ctx context.Context, accountID string, now time.Time) (ClaimResult, error) {
	acct, err := s.Store.GetAccount(ctx, accountID)
	if err != nil {
		return ClaimResult{}, err
	}

	today := CalendarDate(now, s.Location)
	streak := TrackStreak(today, acct.LastLoginDate, acct.ConsecutiveLoginDays)
	if !streak.IsNewClaimToday {
		return s.alreadyClaimed(ctx, acct, today)
	}

	claim := models.DailyClaimRecord{
		ID:                     uuid.NewString(),
		AccountID:              accountID,
		ClaimDate:              today,
		ConsecutiveDaysAtClaim: streak.NewConsecutiveDays,
		TokensEarned:           RewardForDay(streak.NewConsecutiveDays),
	}
	txn := models.TokenTransaction{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Amount:      claim.TokensEarned,
		Kind:        models.TransactionKindDailyReward,
		ReferenceID: claim.ID,
	}

	updated, err := s.Store.RecordDailyClaim(ctx, claim, txn)
	if errors.Is(err, ErrDuplicateRecord) {
		// Lost the race: another device or a retried call claimed today
		// between our projection read and the insert.
		return s.alreadyClaimed(ctx, acct, today)
	}
	if err != nil {
		return ClaimResult{}, err
	}

	if streak.NewConsecutiveDays >= rewardCycleDays && s.Badges != nil {
		if _, err := s.Badges.EvaluateAll(ctx, accountID); err != nil {
			log.Printf("[ledger] badge evaluation after claim failed for %s: %v", accountID, err)
		}
	}

	return ClaimResult{
		ConsecutiveDays: streak.NewConsecutiveDays,
		TokensEarned:    claim.TokensEarned,
		TotalBalance:    updated.TokenBalance,
	}, nil
}

// alreadyClaimed builds the no-change result from the existing claim record.
func (s *RewardLedgerService) alreadyClaimed(ctx context.Context, acct models.Account, today time.Time) (ClaimResult, error) {
	existing, err := s.Store.GetDailyClaim(ctx, acct.ID, today)
	if err != nil {
		return ClaimResult{}, err
	}
	// Re-read so a losing racer reports the balance the winner left behind.
	fresh, err := s.Store.GetAccount(ctx, acct.ID)
	if err != nil {
		return ClaimResult{}, err
	}
	return ClaimResult{
		ConsecutiveDays: existing.ConsecutiveDaysAtClaim,
		TokensEarned:    existing.TokensEarned,
		TotalBalance:    fresh.TokenBalance,
	}, engineErr(CodeAlreadyClaimedToday, "daily reward already claimed for %s", today.Format("2006-01-02"))
}

// StreakStatus is the read-side view of the streak projection.
type StreakStatus struct {
	LastLoginDate   *time.Time `json:"last_login_date,omitempty"`
	ConsecutiveDays int        `json:"consecutive_days"`
	HasClaimedToday bool       `json:"has_claimed_today"`
	NextReward      int64      `json:"next_reward"`
}

// GetStreakStatus reports the current streak and the payout the next claim
// would earn.
func (s *RewardLedgerService) GetStreakStatus(ctx context.Context, accountID string, now time.Time) (StreakStatus, error) {
	acct, err := s.Store.GetAccount(ctx, accountID)
	if err != nil {
		return StreakStatus{}, err
	}

	today := CalendarDate(now, s.Location)
	streak := TrackStreak(today, acct.LastLoginDate, acct.ConsecutiveLoginDays)

	status := StreakStatus{
		LastLoginDate:   acct.LastLoginDate,
		ConsecutiveDays: acct.ConsecutiveLoginDays,
		HasClaimedToday: !streak.IsNewClaimToday,
	}
	if status.HasClaimedToday {
		status.NextReward = RewardForDay(acct.ConsecutiveLoginDays + 1)
	} else {
		status.NextReward = RewardForDay(streak.NewConsecutiveDays)
	}
	return status, nil
}
