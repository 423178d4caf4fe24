package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"fortune-entitlements-service/models"

	"github.com/google/uuid"
)

// TrialDuration is the fixed premium window granted once per account.
const TrialDuration = 3 * 24 * time.Hour

// TrialService is the state machine over a single, non-repeatable free
// trial: ELIGIBLE -> ACTIVE -> {EXPIRED | CONVERTED | CANCELLED}, never back.
// ELIGIBLE is implicit: no record exists and the account's used flag is off.
type TrialService struct {
	Store Store
	Bus   *TrialEventBus
}

func NewTrialService(store Store, bus *TrialEventBus) *TrialService {
	return &TrialService{Store: store, Bus: bus}
}

// TrialStatusView is the caller-facing trial state. IsTrialActive is always
// recomputed from the end date; between a trial's natural end and the next
// sweep the stored status lags reality and must not be trusted alone.
type TrialStatusView struct {
	CanStartTrial bool       `json:"can_start_trial"`
	IsTrialActive bool       `json:"is_trial_active"`
	RemainingDays int        `json:"remaining_days"`
	TrialEndDate  *time.Time `json:"trial_end_date,omitempty"`
}

// CheckStatus reports eligibility and effective activity at now.
func (s *TrialService) CheckStatus(ctx context.Context, accountID string, now time.Time) (TrialStatusView, error) {
	acct, err := s.Store.GetAccount(ctx, accountID)
	if err != nil {
		return TrialStatusView{}, err
	}

	trial, err := s.Store.GetTrial(ctx, accountID)
	if errors.Is(err, ErrRecordNotFound) {
		return TrialStatusView{CanStartTrial: !acct.TrialUsed}, nil
	}
	if err != nil {
		return TrialStatusView{}, err
	}

	view := TrialStatusView{
		IsTrialActive: trial.ActiveAt(now),
		TrialEndDate:  &trial.EndDate,
	}
	if view.IsTrialActive {
		view.RemainingDays = int(math.Ceil(trial.EndDate.Sub(now).Hours() / 24))
	}
	return view, nil
}

// StartTrial opens the trial window and burns eligibility in one atomic
// unit. Eligibility never comes back: a cancelled or expired trial still
// counts as used.
func (s *TrialService) StartTrial(ctx context.Context, accountID string, now time.Time) (models.TrialRecord, error) {
	acct, err := s.Store.GetAccount(ctx, accountID)
	if err != nil {
		return models.TrialRecord{}, err
	}
	if acct.TrialUsed {
		return models.TrialRecord{}, s.startRejection(ctx, accountID, now)
	}

	trial := models.TrialRecord{
		ID:        uuid.NewString(),
		AccountID: accountID,
		StartDate: now,
		EndDate:   now.Add(TrialDuration),
		Status:    models.TrialStatusActive,
		UsedFlag:  true,
	}
	created, err := s.Store.CreateTrial(ctx, trial)
	if errors.Is(err, ErrDuplicateRecord) || errors.Is(err, ErrPreconditionFailed) {
		// Lost the start race, or the projection was stale.
		return models.TrialRecord{}, s.startRejection(ctx, accountID, now)
	}
	if err != nil {
		return models.TrialRecord{}, err
	}

	s.publish(created, now)
	log.Printf("[trial] started for %s, ends %s", accountID, created.EndDate.Format(time.RFC3339))
	return created, nil
}

// startRejection distinguishes the two terminal start failures.
func (s *TrialService) startRejection(ctx context.Context, accountID string, now time.Time) error {
	trial, err := s.Store.GetTrial(ctx, accountID)
	if err == nil && trial.ActiveAt(now) {
		return engineErr(CodeTrialAlreadyActive, "trial already running until %s", trial.EndDate.Format(time.RFC3339))
	}
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return err
	}
	return engineErr(CodeTrialAlreadyUsed, "free trial already used for account %s", accountID)
}

// EndTrial transitions ACTIVE -> the given terminal status. Calling it on an
// already-terminal trial is a no-op returning the first terminal state.
func (s *TrialService) EndTrial(ctx context.Context, accountID string, status models.TrialStatus) (models.TrialRecord, error) {
	if !status.Terminal() {
		return models.TrialRecord{}, fmt.Errorf("invalid trial end status %q", status)
	}

	before, err := s.Store.GetTrial(ctx, accountID)
	if err != nil {
		return models.TrialRecord{}, err
	}
	wasActive := before.Status == models.TrialStatusActive

	final, err := s.Store.EndTrial(ctx, accountID, status)
	if err != nil {
		return models.TrialRecord{}, err
	}
	if wasActive && final.Status.Terminal() {
		s.publish(final, time.Now().UTC())
		log.Printf("[trial] ended for %s: %s", accountID, final.Status)
	}
	return final, nil
}

// AutoExpireTrials is the periodic sweep making expiry authoritative in
// storage. Reads already recompute activity from the end date, so the sweep
// only reconciles the stored status (and notifies subscribers).
func (s *TrialService) AutoExpireTrials(ctx context.Context, now time.Time) (int, error) {
	lapsed, err := s.Store.ExpireTrialsBefore(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, trial := range lapsed {
		s.publish(trial, now)
	}
	if len(lapsed) > 0 {
		log.Printf("[trial] sweep expired %d trial(s)", len(lapsed))
	}
	return len(lapsed), nil
}

func (s *TrialService) publish(trial models.TrialRecord, at time.Time) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(TrialEvent{
		AccountID: trial.AccountID,
		Status:    trial.Status,
		EndDate:   trial.EndDate,
		At:        at,
	})
}
