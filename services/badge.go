package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fortune-entitlements-service/models"

	"github.com/google/uuid"
)

// BadgeOutcome is the result of evaluating one badge rule for an account.
type BadgeOutcome string

const (
	BadgeGranted        BadgeOutcome = "granted"
	BadgeAlreadyGranted BadgeOutcome = "already_granted"
	BadgeNotEligible    BadgeOutcome = "not_eligible" // informational, not an error
)

// BadgeService grants achievement badges from the static rule table.
// Evaluation is idempotent: the grant row's uniqueness constraint means an
// account can win a badge exactly once no matter how many call sites
// evaluate it concurrently.
type BadgeService struct {
	Store Store
}

func NewBadgeService(store Store) *BadgeService {
	return &BadgeService{Store: store}
}

// Evaluate checks a single badge rule against the account's metrics.
func (s *BadgeService) Evaluate(ctx context.Context, accountID, badgeKey string) (BadgeOutcome, error) {
	rule, ok := models.RuleForKey(badgeKey)
	if !ok {
		return "", fmt.Errorf("unknown badge key %q: %w", badgeKey, ErrRecordNotFound)
	}

	if _, err := s.Store.GetBadgeGrant(ctx, accountID, badgeKey); err == nil {
		return BadgeAlreadyGranted, nil
	} else if !errors.Is(err, ErrRecordNotFound) {
		return "", err
	}

	acct, err := s.Store.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if metricFor(acct, rule.Requirement) < rule.Threshold {
		return BadgeNotEligible, nil
	}

	grant := models.BadgeGrant{
		ID:        uuid.NewString(),
		AccountID: accountID,
		BadgeKey:  badgeKey,
		EarnedAt:  time.Now().UTC(),
	}
	if _, err := s.Store.CreateBadgeGrant(ctx, grant); err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			return BadgeAlreadyGranted, nil
		}
		return "", err
	}
	log.Printf("[badges] granted %s to %s", badgeKey, accountID)
	return BadgeGranted, nil
}

// EvaluateAll runs every rule and returns the keys granted by this call.
func (s *BadgeService) EvaluateAll(ctx context.Context, accountID string) ([]string, error) {
	var granted []string
	for _, rule := range models.BadgeRules {
		outcome, err := s.Evaluate(ctx, accountID, rule.Key)
		if err != nil {
			return granted, err
		}
		if outcome == BadgeGranted {
			granted = append(granted, rule.Key)
		}
	}
	return granted, nil
}

func metricFor(acct models.Account, req models.BadgeRequirement) int64 {
	switch req {
	case models.RequirementStreakDays:
		return int64(acct.ConsecutiveLoginDays)
	case models.RequirementFortunesSent:
		return acct.TotalFortunesSent
	case models.RequirementFirstPurchase:
		if acct.FirstPurchaseDate != nil {
			return 1
		}
		return 0
	default:
		return 0
	}
}
