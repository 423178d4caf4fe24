package services

import (
	"context"
	"errors"
	"time"

	"fortune-entitlements-service/models"
)

// Storage sentinels. Implementations translate their backend's failure modes
// into these; the engine never inspects driver errors directly.
var (
	// ErrDuplicateRecord means a uniqueness constraint rejected the write.
	// This is the signal every exactly-once guarantee in the engine hangs on.
	ErrDuplicateRecord = errors.New("duplicate record")

	// ErrRecordNotFound means the requested row does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrPreconditionFailed means a guarded conditional write matched no
	// rows (e.g. starting a trial when the used flag is already set).
	ErrPreconditionFailed = errors.New("precondition failed")
)

// Store is the persistence boundary of the entitlements engine. Operations
// that credit tokens are composite and atomic: the event row, the ledger
// append and the additive balance update land in a single transaction, so a
// retry after an unknown outcome either finds the uniqueness constraint
// already satisfied or starts from scratch, never a partial credit.
type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, acct models.Account) (models.Account, error)
	GetAccount(ctx context.Context, accountID string) (models.Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (models.Account, error)

	// Daily claims. RecordDailyClaim inserts the claim row (unique per
	// account and calendar day), appends txn and applies its amount to the
	// cached balance together with the streak projection, atomically.
	// Returns ErrDuplicateRecord when the day is already claimed.
	RecordDailyClaim(ctx context.Context, claim models.DailyClaimRecord, txn models.TokenTransaction) (models.Account, error)
	GetDailyClaim(ctx context.Context, accountID string, day time.Time) (models.DailyClaimRecord, error)

	// Ledger
	ListTransactions(ctx context.Context, accountID string, limit int) ([]models.TokenTransaction, error)
	SumTransactions(ctx context.Context, accountID string) (int64, error)

	// Trials. CreateTrial inserts the record and flips Account.TrialUsed in
	// one transaction; it fails with ErrDuplicateRecord when a record
	// already exists and ErrPreconditionFailed when the used flag is set.
	// EndTrial transitions ACTIVE -> status and is a no-op on terminal rows.
	CreateTrial(ctx context.Context, trial models.TrialRecord) (models.TrialRecord, error)
	GetTrial(ctx context.Context, accountID string) (models.TrialRecord, error)
	EndTrial(ctx context.Context, accountID string, status models.TrialStatus) (models.TrialRecord, error)
	// ExpireTrialsBefore sweeps every ACTIVE record whose end date passed.
	ExpireTrialsBefore(ctx context.Context, now time.Time) ([]models.TrialRecord, error)

	// Referrals. RecordReferral inserts the redemption (unique per referee),
	// appends both bonus transactions, applies both balance increments and
	// flips the referee's ReferralUsed flag, atomically.
	RecordReferral(ctx context.Context, rec models.ReferralRecord, referrerTxn, refereeTxn models.TokenTransaction) error
	GetReferralByReferee(ctx context.Context, refereeID string) (models.ReferralRecord, error)

	// Badges
	CreateBadgeGrant(ctx context.Context, grant models.BadgeGrant) (models.BadgeGrant, error)
	GetBadgeGrant(ctx context.Context, accountID, badgeKey string) (models.BadgeGrant, error)
	ListBadgeGrants(ctx context.Context, accountID string) ([]models.BadgeGrant, error)

	// Metrics fed by the sync workers.
	SetFirstPurchaseDate(ctx context.Context, accountID string, at time.Time) error
	SetTotalFortunesSent(ctx context.Context, accountID string, total int64) error

	// Badge catalog (display metadata only).
	UpsertBadgeCatalogEntry(ctx context.Context, entry models.BadgeCatalogEntry) (models.BadgeCatalogEntry, error)
	ListBadgeCatalog(ctx context.Context) ([]models.BadgeCatalogEntry, error)
}
