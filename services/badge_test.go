package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgeEvaluate_UnknownKey(t *testing.T) {
	e := newTestEngine(t)
	e.mustAccount(t, accountA, "mira")

	_, err := e.badges.Evaluate(context.Background(), accountA, "NO_SUCH_BADGE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestBadgeEvaluate_NotEligibleThenGranted(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	outcome, err := e.badges.Evaluate(ctx, accountA, "FORTUNE_50")
	require.NoError(t, err)
	assert.Equal(t, BadgeNotEligible, outcome)

	require.NoError(t, e.store.SetTotalFortunesSent(ctx, accountA, 50))
	outcome, err = e.badges.Evaluate(ctx, accountA, "FORTUNE_50")
	require.NoError(t, err)
	assert.Equal(t, BadgeGranted, outcome)

	// Same call again is a no-op, not a second grant.
	outcome, err = e.badges.Evaluate(ctx, accountA, "FORTUNE_50")
	require.NoError(t, err)
	assert.Equal(t, BadgeAlreadyGranted, outcome)

	grants, err := e.store.ListBadgeGrants(ctx, accountA)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "FORTUNE_50", grants[0].BadgeKey)
}

func TestBadgeEvaluate_FirstPurchase(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	outcome, err := e.badges.Evaluate(ctx, accountA, "FIRST_PURCHASE")
	require.NoError(t, err)
	assert.Equal(t, BadgeNotEligible, outcome)

	when := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, e.store.SetFirstPurchaseDate(ctx, accountA, when))

	outcome, err = e.badges.Evaluate(ctx, accountA, "FIRST_PURCHASE")
	require.NoError(t, err)
	assert.Equal(t, BadgeGranted, outcome)
}

func TestBadgeEvaluateAll_ReturnsOnlyNewGrants(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	require.NoError(t, e.store.SetTotalFortunesSent(ctx, accountA, 3))

	granted, err := e.badges.EvaluateAll(ctx, accountA)
	require.NoError(t, err)
	assert.Equal(t, []string{"FIRST_FORTUNE"}, granted)

	// Second sweep with unchanged metrics grants nothing new.
	granted, err = e.badges.EvaluateAll(ctx, accountA)
	require.NoError(t, err)
	assert.Empty(t, granted)
}

func TestBadgeEvaluate_ConcurrentGrantsOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")
	require.NoError(t, e.store.SetTotalFortunesSent(ctx, accountA, 1))

	const callers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	grantedCount := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := e.badges.Evaluate(ctx, accountA, "FIRST_FORTUNE")
			if err == nil && outcome == BadgeGranted {
				mu.Lock()
				grantedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, grantedCount)

	grants, err := e.store.ListBadgeGrants(ctx, accountA)
	require.NoError(t, err)
	require.Len(t, grants, 1)
}
