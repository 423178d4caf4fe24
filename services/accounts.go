package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"fortune-entitlements-service/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// AccountService owns the Account projection: idempotent bootstrap, balance
// reads and the ledger reconciliation check.
type AccountService struct {
	Store Store
}

func NewAccountService(store Store) *AccountService {
	return &AccountService{Store: store}
}

// NewReferralCode builds a shareable invite code from the user's name plus a
// random suffix, e.g. "luna-mara-3f9a1c". Codes are matched after the same
// slug normalization, so redemption is case- and whitespace-insensitive.
func NewReferralCode(username string) string {
	base := slug.Make(username)
	if base == "" {
		base = "seer"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s-%s", base, suffix)
}

// NormalizeReferralCode canonicalizes user-entered codes before lookup.
func NormalizeReferralCode(code string) string {
	return slug.Make(code)
}

// EnsureAccount returns the account projection, creating it on first contact.
// Safe under concurrent first contact from multiple devices: the loser of the
// insert race just reads the winner's row.
func (s *AccountService) EnsureAccount(ctx context.Context, accountID, username string) (models.Account, error) {
	acct, err := s.Store.GetAccount(ctx, accountID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return models.Account{}, err
	}

	acct = models.Account{
		ID:           accountID,
		Username:     username,
		ReferralCode: NewReferralCode(username),
	}
	created, err := s.Store.CreateAccount(ctx, acct)
	if err == nil {
		log.Printf("[accounts] created projection for %s (code %s)", accountID, created.ReferralCode)
		return created, nil
	}
	if errors.Is(err, ErrDuplicateRecord) {
		// Either another device created the row first, or the generated code
		// collided. Re-read; if the account is still missing it was a code
		// collision, so try once more with a fresh suffix.
		if existing, getErr := s.Store.GetAccount(ctx, accountID); getErr == nil {
			return existing, nil
		}
		acct.ReferralCode = NewReferralCode(username)
		return s.Store.CreateAccount(ctx, acct)
	}
	return models.Account{}, err
}

// GetBalance returns the cached balance with recent ledger entries.
func (s *AccountService) GetBalance(ctx context.Context, accountID string, historyLimit int) (models.Account, []models.TokenTransaction, error) {
	acct, err := s.Store.GetAccount(ctx, accountID)
	if err != nil {
		return models.Account{}, nil, err
	}
	txns, err := s.Store.ListTransactions(ctx, accountID, historyLimit)
	if err != nil {
		return models.Account{}, nil, err
	}
	return acct, txns, nil
}

// ReconciliationReport compares the cached balance against the ledger sum.
type ReconciliationReport struct {
	AccountID     string `json:"account_id"`
	CachedBalance int64  `json:"cached_balance"`
	LedgerSum     int64  `json:"ledger_sum"`
	Consistent    bool   `json:"consistent"`
}

// Reconcile asserts the ledger invariant: sum of transaction amounts equals
// the cached token balance.
func (s *AccountService) Reconcile(ctx context.Context, accountID string) (ReconciliationReport, error) {
	acct, err := s.Store.GetAccount(ctx, accountID)
	if err != nil {
		return ReconciliationReport{}, err
	}
	sum, err := s.Store.SumTransactions(ctx, accountID)
	if err != nil {
		return ReconciliationReport{}, err
	}
	report := ReconciliationReport{
		AccountID:     accountID,
		CachedBalance: acct.TokenBalance,
		LedgerSum:     sum,
		Consistent:    acct.TokenBalance == sum,
	}
	if !report.Consistent {
		log.Printf("[accounts] RECONCILE MISMATCH %s: cached=%d ledger=%d", accountID, acct.TokenBalance, sum)
	}
	return report, nil
}
