package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"fortune-entitlements-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEngine struct {
	store     *MemoryStore
	accounts  *AccountService
	badges    *BadgeService
	ledger    *RewardLedgerService
	trials    *TrialService
	referrals *ReferralService
	bus       *TrialEventBus
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	store := NewMemoryStore()
	badges := NewBadgeService(store)
	bus := NewTrialEventBus()
	return &testEngine{
		store:     store,
		accounts:  NewAccountService(store),
		badges:    badges,
		ledger:    NewRewardLedgerService(store, badges, time.UTC),
		trials:    NewTrialService(store, bus),
		referrals: NewReferralService(store, badges),
		bus:       bus,
	}
}

func (e *testEngine) mustAccount(t *testing.T, id, username string) models.Account {
	t.Helper()
	acct, err := e.accounts.EnsureAccount(context.Background(), id, username)
	require.NoError(t, err)
	return acct
}

const (
	accountA = "7f9f1f8a-0000-4000-8000-000000000001"
	accountB = "7f9f1f8a-0000-4000-8000-000000000002"
)

func TestClaimDailyReward_FirstClaim(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	result, err := e.ledger.ClaimDailyReward(ctx, accountA, now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ConsecutiveDays)
	assert.Equal(t, int64(1), result.TokensEarned)
	assert.Equal(t, int64(1), result.TotalBalance)
}

func TestClaimDailyReward_SecondClaimSameDay(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	first, err := e.ledger.ClaimDailyReward(ctx, accountA, now)
	require.NoError(t, err)

	// Later the same day, even from "another device".
	second, err := e.ledger.ClaimDailyReward(ctx, accountA, now.Add(6*time.Hour))
	require.Error(t, err)
	assert.Equal(t, CodeAlreadyClaimedToday, CodeOf(err))
	assert.Equal(t, first.ConsecutiveDays, second.ConsecutiveDays)
	assert.Equal(t, first.TokensEarned, second.TokensEarned)
	assert.Equal(t, first.TotalBalance, second.TotalBalance, "balance unchanged after duplicate claim")
}

func TestClaimDailyReward_StreakContinuityAndGap(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) (*testEngine, time.Time) {
		e := newTestEngine(t)
		e.mustAccount(t, accountA, "mira")
		day := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
		for i := 0; i < 6; i++ {
			_, err := e.ledger.ClaimDailyReward(ctx, accountA, day.AddDate(0, 0, i))
			require.NoError(t, err)
		}
		// Last claimed on day D with consecutiveDays=6.
		return e, day.AddDate(0, 0, 5)
	}

	t.Run("next day reaches 7 and pays the bonus", func(t *testing.T) {
		e, dayD := seed(t)
		result, err := e.ledger.ClaimDailyReward(ctx, accountA, dayD.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Equal(t, 7, result.ConsecutiveDays)
		assert.Equal(t, int64(2), result.TokensEarned)
	})

	t.Run("a gap resets to 1", func(t *testing.T) {
		e, dayD := seed(t)
		result, err := e.ledger.ClaimDailyReward(ctx, accountA, dayD.AddDate(0, 0, 3))
		require.NoError(t, err)
		assert.Equal(t, 1, result.ConsecutiveDays)
		assert.Equal(t, int64(1), result.TokensEarned)
	})
}

func TestClaimDailyReward_EndToEndWeek(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	day := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	var balance int64
	for i := 0; i < 6; i++ {
		result, err := e.ledger.ClaimDailyReward(ctx, accountA, day.AddDate(0, 0, i))
		require.NoError(t, err)
		balance = result.TotalBalance
		assert.Equal(t, i+1, result.ConsecutiveDays)
	}
	assert.Equal(t, int64(6), balance)

	result, err := e.ledger.ClaimDailyReward(ctx, accountA, day.AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.Equal(t, 7, result.ConsecutiveDays)
	assert.Equal(t, int64(8), result.TotalBalance, "6 + day-7 bonus of 2")

	// The streak badge lands as a side effect of the day-7 claim.
	grant, err := e.store.GetBadgeGrant(ctx, accountA, "STREAK_7")
	require.NoError(t, err)
	assert.Equal(t, "STREAK_7", grant.BadgeKey)
}

func TestClaimDailyReward_ConcurrentClaimsCreditOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	const callers = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, conflicts := 0, 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.ClaimDailyReward(ctx, accountA, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case CodeOf(err) == CodeAlreadyClaimedToday:
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one caller credits")
	assert.Equal(t, callers-1, conflicts)

	acct, err := e.store.GetAccount(ctx, accountA)
	require.NoError(t, err)
	assert.Equal(t, int64(1), acct.TokenBalance)
}

func TestClaimDailyReward_LedgerReconciles(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")
	e.mustAccount(t, accountB, "talia")

	day := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 9; i++ {
		_, err := e.ledger.ClaimDailyReward(ctx, accountA, day.AddDate(0, 0, i))
		require.NoError(t, err)
	}
	acctB, err := e.store.GetAccount(ctx, accountB)
	require.NoError(t, err)
	_, err = e.referrals.RedeemReferralCode(ctx, accountA, acctB.ReferralCode, day)
	require.NoError(t, err)

	for _, id := range []string{accountA, accountB} {
		report, err := e.accounts.Reconcile(ctx, id)
		require.NoError(t, err)
		assert.True(t, report.Consistent, "ledger sum must equal cached balance for %s", id)
	}
}

func TestGetStreakStatus(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	status, err := e.ledger.GetStreakStatus(ctx, accountA, now)
	require.NoError(t, err)
	assert.False(t, status.HasClaimedToday)
	assert.Equal(t, 0, status.ConsecutiveDays)
	assert.Equal(t, int64(1), status.NextReward)

	_, err = e.ledger.ClaimDailyReward(ctx, accountA, now)
	require.NoError(t, err)

	status, err = e.ledger.GetStreakStatus(ctx, accountA, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, status.HasClaimedToday)
	assert.Equal(t, 1, status.ConsecutiveDays)
	require.NotNil(t, status.LastLoginDate)

	// Six days into a streak, tomorrow's claim is the bonus day.
	day := now
	for i := 1; i < 6; i++ {
		_, err := e.ledger.ClaimDailyReward(ctx, accountA, day.AddDate(0, 0, i))
		require.NoError(t, err)
	}
	status, err = e.ledger.GetStreakStatus(ctx, accountA, day.AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.False(t, status.HasClaimedToday)
	assert.Equal(t, int64(2), status.NextReward)
}
