package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"fortune-entitlements-service/models"
)

// MemoryStore is an in-memory Store for tests and local development. It
// enforces the same uniqueness rules as the Postgres schema under a single
// mutex, so the engine's race behaviour is observable without a database.
type MemoryStore struct {
	mu        sync.Mutex
	accounts  map[string]models.Account          // by account ID
	codes     map[string]string                  // referral code -> account ID
	claims    map[string]models.DailyClaimRecord // accountID|date
	txns      []models.TokenTransaction
	trials    map[string]models.TrialRecord    // by account ID
	referrals map[string]models.ReferralRecord // by referee ID
	grants    map[string]models.BadgeGrant     // accountID|badgeKey
	catalog   map[string]models.BadgeCatalogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]models.Account),
		codes:     make(map[string]string),
		claims:    make(map[string]models.DailyClaimRecord),
		trials:    make(map[string]models.TrialRecord),
		referrals: make(map[string]models.ReferralRecord),
		grants:    make(map[string]models.BadgeGrant),
		catalog:   make(map[string]models.BadgeCatalogEntry),
	}
}

func claimKey(accountID string, day time.Time) string {
	return accountID + "|" + day.Format("2006-01-02")
}

func grantKey(accountID, badgeKey string) string {
	return accountID + "|" + badgeKey
}

// --- Accounts ---

func (s *MemoryStore) CreateAccount(ctx context.Context, acct models.Account) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[acct.ID]; ok {
		return models.Account{}, ErrDuplicateRecord
	}
	if _, ok := s.codes[acct.ReferralCode]; ok {
		return models.Account{}, ErrDuplicateRecord
	}
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	s.accounts[acct.ID] = acct
	s.codes[acct.ReferralCode] = acct.ID
	return acct, nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAccountLocked(accountID)
}

func (s *MemoryStore) getAccountLocked(accountID string) (models.Account, error) {
	acct, ok := s.accounts[accountID]
	if !ok {
		return models.Account{}, ErrRecordNotFound
	}
	return acct, nil
}

func (s *MemoryStore) GetAccountByReferralCode(ctx context.Context, code string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.codes[code]
	if !ok {
		return models.Account{}, ErrRecordNotFound
	}
	return s.accounts[id], nil
}

// --- Daily claims ---

func (s *MemoryStore) RecordDailyClaim(ctx context.Context, claim models.DailyClaimRecord, txn models.TokenTransaction) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.getAccountLocked(claim.AccountID)
	if err != nil {
		return models.Account{}, err
	}
	key := claimKey(claim.AccountID, claim.ClaimDate)
	if _, ok := s.claims[key]; ok {
		return models.Account{}, ErrDuplicateRecord
	}
	claim.CreatedAt = time.Now().UTC()
	txn.CreatedAt = claim.CreatedAt
	s.claims[key] = claim
	s.txns = append(s.txns, txn)

	day := claim.ClaimDate
	acct.TokenBalance += txn.Amount
	acct.LastLoginDate = &day
	acct.ConsecutiveLoginDays = claim.ConsecutiveDaysAtClaim
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[acct.ID] = acct
	return acct, nil
}

func (s *MemoryStore) GetDailyClaim(ctx context.Context, accountID string, day time.Time) (models.DailyClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.claims[claimKey(accountID, day)]
	if !ok {
		return models.DailyClaimRecord{}, ErrRecordNotFound
	}
	return rec, nil
}

// --- Ledger ---

func (s *MemoryStore) ListTransactions(ctx context.Context, accountID string, limit int) ([]models.TokenTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.TokenTransaction
	for _, txn := range s.txns {
		if txn.AccountID == accountID {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SumTransactions(ctx context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum int64
	for _, txn := range s.txns {
		if txn.AccountID == accountID {
			sum += txn.Amount
		}
	}
	return sum, nil
}

// --- Trials ---

func (s *MemoryStore) CreateTrial(ctx context.Context, trial models.TrialRecord) (models.TrialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.getAccountLocked(trial.AccountID)
	if err != nil {
		return models.TrialRecord{}, err
	}
	if acct.TrialUsed {
		return models.TrialRecord{}, ErrPreconditionFailed
	}
	if _, ok := s.trials[trial.AccountID]; ok {
		return models.TrialRecord{}, ErrDuplicateRecord
	}
	now := time.Now().UTC()
	trial.CreatedAt = now
	trial.UpdatedAt = now
	s.trials[trial.AccountID] = trial

	acct.TrialUsed = true
	acct.UpdatedAt = now
	s.accounts[acct.ID] = acct
	return trial, nil
}

func (s *MemoryStore) GetTrial(ctx context.Context, accountID string) (models.TrialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trial, ok := s.trials[accountID]
	if !ok {
		return models.TrialRecord{}, ErrRecordNotFound
	}
	return trial, nil
}

func (s *MemoryStore) EndTrial(ctx context.Context, accountID string, status models.TrialStatus) (models.TrialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trial, ok := s.trials[accountID]
	if !ok {
		return models.TrialRecord{}, ErrRecordNotFound
	}
	if trial.Status.Terminal() {
		return trial, nil
	}
	trial.Status = status
	trial.UpdatedAt = time.Now().UTC()
	s.trials[accountID] = trial
	return trial, nil
}

func (s *MemoryStore) ExpireTrialsBefore(ctx context.Context, now time.Time) ([]models.TrialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lapsed []models.TrialRecord
	for id, trial := range s.trials {
		if trial.Status == models.TrialStatusActive && trial.EndDate.Before(now) {
			trial.Status = models.TrialStatusExpired
			trial.UpdatedAt = time.Now().UTC()
			s.trials[id] = trial
			lapsed = append(lapsed, trial)
		}
	}
	return lapsed, nil
}

// --- Referrals ---

func (s *MemoryStore) RecordReferral(ctx context.Context, rec models.ReferralRecord, referrerTxn, refereeTxn models.TokenTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.referrals[rec.RefereeID]; ok {
		return ErrDuplicateRecord
	}
	referrer, err := s.getAccountLocked(rec.ReferrerID)
	if err != nil {
		return err
	}
	referee, err := s.getAccountLocked(rec.RefereeID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	referrerTxn.CreatedAt = now
	refereeTxn.CreatedAt = now
	s.referrals[rec.RefereeID] = rec
	s.txns = append(s.txns, referrerTxn, refereeTxn)

	referrer.TokenBalance += referrerTxn.Amount
	referrer.UpdatedAt = now
	s.accounts[referrer.ID] = referrer

	referee.TokenBalance += refereeTxn.Amount
	referee.ReferralUsed = true
	referee.UpdatedAt = now
	s.accounts[referee.ID] = referee
	return nil
}

func (s *MemoryStore) GetReferralByReferee(ctx context.Context, refereeID string) (models.ReferralRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.referrals[refereeID]
	if !ok {
		return models.ReferralRecord{}, ErrRecordNotFound
	}
	return rec, nil
}

// --- Badges ---

func (s *MemoryStore) CreateBadgeGrant(ctx context.Context, grant models.BadgeGrant) (models.BadgeGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := grantKey(grant.AccountID, grant.BadgeKey)
	if _, ok := s.grants[key]; ok {
		return models.BadgeGrant{}, ErrDuplicateRecord
	}
	grant.CreatedAt = time.Now().UTC()
	s.grants[key] = grant
	return grant, nil
}

func (s *MemoryStore) GetBadgeGrant(ctx context.Context, accountID, badgeKey string) (models.BadgeGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[grantKey(accountID, badgeKey)]
	if !ok {
		return models.BadgeGrant{}, ErrRecordNotFound
	}
	return grant, nil
}

func (s *MemoryStore) ListBadgeGrants(ctx context.Context, accountID string) ([]models.BadgeGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.BadgeGrant
	for _, grant := range s.grants {
		if grant.AccountID == accountID {
			out = append(out, grant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EarnedAt.Before(out[j].EarnedAt) })
	return out, nil
}

// --- Metrics ---

func (s *MemoryStore) SetFirstPurchaseDate(ctx context.Context, accountID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.getAccountLocked(accountID)
	if err != nil {
		return err
	}
	if acct.FirstPurchaseDate != nil {
		return nil
	}
	acct.FirstPurchaseDate = &at
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[accountID] = acct
	return nil
}

func (s *MemoryStore) SetTotalFortunesSent(ctx context.Context, accountID string, total int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.getAccountLocked(accountID)
	if err != nil {
		return err
	}
	acct.TotalFortunesSent = total
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[accountID] = acct
	return nil
}

// --- Badge catalog ---

func (s *MemoryStore) UpsertBadgeCatalogEntry(ctx context.Context, entry models.BadgeCatalogEntry) (models.BadgeCatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.catalog[entry.BadgeKey]; ok {
		existing.Name = entry.Name
		existing.Description = entry.Description
		existing.IconURL = entry.IconURL
		existing.UpdatedAt = now
		s.catalog[entry.BadgeKey] = existing
		return existing, nil
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.catalog[entry.BadgeKey] = entry
	return entry, nil
}

func (s *MemoryStore) ListBadgeCatalog(ctx context.Context) ([]models.BadgeCatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.BadgeCatalogEntry, 0, len(s.catalog))
	for _, entry := range s.catalog {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeKey < out[j].BadgeKey })
	return out, nil
}
