package services

import (
	"context"
	"testing"
	"time"

	"fortune-entitlements-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrialLifecycle_StartAndStatus(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	view, err := e.trials.CheckStatus(ctx, accountA, now)
	require.NoError(t, err)
	assert.True(t, view.CanStartTrial)
	assert.False(t, view.IsTrialActive)

	trial, err := e.trials.StartTrial(ctx, accountA, now)
	require.NoError(t, err)
	assert.Equal(t, models.TrialStatusActive, trial.Status)
	assert.Equal(t, now.Add(TrialDuration), trial.EndDate)
	assert.True(t, trial.UsedFlag)

	view, err = e.trials.CheckStatus(ctx, accountA, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, view.CanStartTrial)
	assert.True(t, view.IsTrialActive)
	assert.Equal(t, 2, view.RemainingDays)
	require.NotNil(t, view.TrialEndDate)
}

func TestTrialLifecycle_StartRejections(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := e.trials.StartTrial(ctx, accountA, now)
	require.NoError(t, err)

	// While running: ALREADY_ACTIVE.
	_, err = e.trials.StartTrial(ctx, accountA, now.Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, CodeTrialAlreadyActive, CodeOf(err))

	// Long after it lapsed: ALREADY_USED, forever.
	_, err = e.trials.StartTrial(ctx, accountA, now.Add(90*24*time.Hour))
	require.Error(t, err)
	assert.Equal(t, CodeTrialAlreadyUsed, CodeOf(err))
}

func TestTrialLifecycle_UsedFlagSurvivesCancellation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := e.trials.StartTrial(ctx, accountA, now)
	require.NoError(t, err)

	_, err = e.trials.EndTrial(ctx, accountA, models.TrialStatusCancelled)
	require.NoError(t, err)

	// Cancelling does not restore eligibility.
	_, err = e.trials.StartTrial(ctx, accountA, now.Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, CodeTrialAlreadyUsed, CodeOf(err))

	acct, err := e.store.GetAccount(ctx, accountA)
	require.NoError(t, err)
	assert.True(t, acct.TrialUsed)
}

func TestTrialLifecycle_EndIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := e.trials.StartTrial(ctx, accountA, now)
	require.NoError(t, err)

	first, err := e.trials.EndTrial(ctx, accountA, models.TrialStatusConverted)
	require.NoError(t, err)
	assert.Equal(t, models.TrialStatusConverted, first.Status)

	// A later end with a different reason keeps the first terminal state.
	second, err := e.trials.EndTrial(ctx, accountA, models.TrialStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.TrialStatusConverted, second.Status)
}

func TestTrialLifecycle_InvalidEndStatus(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	_, err := e.trials.StartTrial(ctx, accountA, time.Now().UTC())
	require.NoError(t, err)

	_, err = e.trials.EndTrial(ctx, accountA, models.TrialStatusActive)
	require.Error(t, err)
}

func TestTrialLifecycle_ExpiryBeforeSweepIsEffective(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := e.trials.StartTrial(ctx, accountA, start)
	require.NoError(t, err)

	afterEnd := start.Add(TrialDuration + time.Minute)

	// Stored status still says ACTIVE, but the view must not.
	stored, err := e.store.GetTrial(ctx, accountA)
	require.NoError(t, err)
	assert.Equal(t, models.TrialStatusActive, stored.Status)

	view, err := e.trials.CheckStatus(ctx, accountA, afterEnd)
	require.NoError(t, err)
	assert.False(t, view.IsTrialActive)
	assert.False(t, view.CanStartTrial)
	assert.Equal(t, 0, view.RemainingDays)
}

func TestTrialLifecycle_AutoExpireSweep(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")
	e.mustAccount(t, accountB, "talia")

	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := e.trials.StartTrial(ctx, accountA, start)
	require.NoError(t, err)
	// B starts later and is still inside its window at sweep time.
	_, err = e.trials.StartTrial(ctx, accountB, start.Add(48*time.Hour))
	require.NoError(t, err)

	sweepAt := start.Add(TrialDuration + time.Hour)
	expired, err := e.trials.AutoExpireTrials(ctx, sweepAt)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	trialA, err := e.store.GetTrial(ctx, accountA)
	require.NoError(t, err)
	assert.Equal(t, models.TrialStatusExpired, trialA.Status)

	trialB, err := e.store.GetTrial(ctx, accountB)
	require.NoError(t, err)
	assert.Equal(t, models.TrialStatusActive, trialB.Status)

	// Sweeping again finds nothing.
	expired, err = e.trials.AutoExpireTrials(ctx, sweepAt)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestTrialLifecycle_EventsPublished(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.mustAccount(t, accountA, "mira")

	sub := e.bus.Subscribe(accountA)
	defer sub.Unsubscribe()

	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := e.trials.StartTrial(ctx, accountA, start)
	require.NoError(t, err)

	evt := <-sub.C
	assert.Equal(t, accountA, evt.AccountID)
	assert.Equal(t, models.TrialStatusActive, evt.Status)

	_, err = e.trials.AutoExpireTrials(ctx, start.Add(TrialDuration+time.Hour))
	require.NoError(t, err)

	evt = <-sub.C
	assert.Equal(t, models.TrialStatusExpired, evt.Status)
}
