package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedeemReferralCode_SelfRejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	acct := e.mustAccount(t, accountA, "mira")

	_, err := e.referrals.RedeemReferralCode(ctx, accountA, acct.ReferralCode, time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, CodeInvalidReferralCodeSelf, CodeOf(err))
}

func TestRedeemReferralCode_CreditsBothSidesOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	referrer := e.mustAccount(t, accountA, "mira")
	e.mustAccount(t, accountB, "talia")

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	result, err := e.referrals.RedeemReferralCode(ctx, accountB, referrer.ReferralCode, now)
	require.NoError(t, err)
	assert.Equal(t, ReferralBonusTokens, result.BonusAwarded)
	assert.Equal(t, accountA, result.ReferrerID)

	acctA, err := e.store.GetAccount(ctx, accountA)
	require.NoError(t, err)
	acctB, err := e.store.GetAccount(ctx, accountB)
	require.NoError(t, err)
	assert.Equal(t, ReferralBonusTokens, acctA.TokenBalance)
	assert.Equal(t, ReferralBonusTokens, acctB.TokenBalance)
	assert.True(t, acctB.ReferralUsed)
	assert.False(t, acctA.ReferralUsed, "referring does not burn the referrer's own redemption")

	// Any second redemption by B is rejected, whatever the code.
	other := e.mustAccount(t, "7f9f1f8a-0000-4000-8000-000000000003", "zey")
	_, err = e.referrals.RedeemReferralCode(ctx, accountB, other.ReferralCode, now)
	require.Error(t, err)
	assert.Equal(t, CodeReferralAlreadyUsed, CodeOf(err))

	acctB, err = e.store.GetAccount(ctx, accountB)
	require.NoError(t, err)
	assert.Equal(t, ReferralBonusTokens, acctB.TokenBalance, "no double credit")
}

func TestRedeemReferralCode_UnknownCode(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	_, err := e.referrals.RedeemReferralCode(ctx, accountA, "no-such-code-123456", time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, CodeReferralCodeNotFound, CodeOf(err))
}

func TestRedeemReferralCode_InputNormalization(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	referrer := e.mustAccount(t, accountA, "Mira Moon")
	e.mustAccount(t, accountB, "talia")

	// Sloppy casing and whitespace still resolve to the same code.
	entered := "  " + strings.ToUpper(referrer.ReferralCode) + "  "
	assert.Equal(t, referrer.ReferralCode, NormalizeReferralCode(entered))

	_, err := e.referrals.RedeemReferralCode(ctx, accountB, entered, time.Now().UTC())
	require.NoError(t, err)
}

func TestRedeemReferralCode_ConcurrentRedemptionsCreditOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	referrer := e.mustAccount(t, accountA, "mira")
	e.mustAccount(t, accountB, "talia")

	now := time.Now().UTC()
	const callers = 12

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.referrals.RedeemReferralCode(ctx, accountB, referrer.ReferralCode, now); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)

	acctB, err := e.store.GetAccount(ctx, accountB)
	require.NoError(t, err)
	assert.Equal(t, ReferralBonusTokens, acctB.TokenBalance)
}

func TestNewReferralCode(t *testing.T) {
	code := NewReferralCode("Mira Moon")
	assert.Equal(t, code, NormalizeReferralCode(code), "generated codes are already canonical")
	assert.Contains(t, code, "mira-moon-")

	// Empty names still get a shareable code.
	fallback := NewReferralCode("")
	assert.Contains(t, fallback, "seer-")

	// Suffixed, so two users with the same name collide only by accident.
	assert.NotEqual(t, NewReferralCode("mira"), NewReferralCode("mira"))
}
