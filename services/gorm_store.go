package services

import (
	"context"
	"errors"
	"time"

	"fortune-entitlements-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the Postgres-backed Store. It relies on the database's
// uniqueness constraints for every exactly-once guarantee and reports them
// through the store sentinels; open the gorm.DB with TranslateError so
// violations arrive as gorm.ErrDuplicatedKey.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func translateStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateRecord
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrRecordNotFound
	default:
		return err
	}
}

// --- Accounts ---

func (s *GormStore) CreateAccount(ctx context.Context, acct models.Account) (models.Account, error) {
	if err := s.DB.WithContext(ctx).Create(&acct).Error; err != nil {
		return models.Account{}, translateStoreErr(err)
	}
	return acct, nil
}

func (s *GormStore) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	var acct models.Account
	err := s.DB.WithContext(ctx).Where("id = ?", accountID).First(&acct).Error
	return acct, translateStoreErr(err)
}

func (s *GormStore) GetAccountByReferralCode(ctx context.Context, code string) (models.Account, error) {
	var acct models.Account
	err := s.DB.WithContext(ctx).Where("referral_code = ?", code).First(&acct).Error
	return acct, translateStoreErr(err)
}

// --- Daily claims ---

func (s *GormStore) RecordDailyClaim(ctx context.Context, claim models.DailyClaimRecord, txn models.TokenTransaction) (models.Account, error) {
	var acct models.Account
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The unique (account_id, claim_date) index is the gate; a losing
		// concurrent claimer fails right here and the whole unit rolls back.
		if err := tx.Create(&claim).Error; err != nil {
			return translateStoreErr(err)
		}
		if err := tx.Create(&txn).Error; err != nil {
			return translateStoreErr(err)
		}
		res := tx.Model(&models.Account{}).
			Where("id = ?", claim.AccountID).
			Updates(map[string]interface{}{
				"token_balance":          gorm.Expr("token_balance + ?", txn.Amount),
				"last_login_date":        claim.ClaimDate,
				"consecutive_login_days": claim.ConsecutiveDaysAtClaim,
			})
		if res.Error != nil {
			return translateStoreErr(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return translateStoreErr(tx.Where("id = ?", claim.AccountID).First(&acct).Error)
	})
	if err != nil {
		return models.Account{}, err
	}
	return acct, nil
}

func (s *GormStore) GetDailyClaim(ctx context.Context, accountID string, day time.Time) (models.DailyClaimRecord, error) {
	var rec models.DailyClaimRecord
	err := s.DB.WithContext(ctx).
		Where("account_id = ? AND claim_date = ?", accountID, day).
		First(&rec).Error
	return rec, translateStoreErr(err)
}

// --- Ledger ---

func (s *GormStore) ListTransactions(ctx context.Context, accountID string, limit int) ([]models.TokenTransaction, error) {
	var txns []models.TokenTransaction
	q := s.DB.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&txns).Error
	return txns, translateStoreErr(err)
}

func (s *GormStore) SumTransactions(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := s.DB.WithContext(ctx).
		Model(&models.TokenTransaction{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, translateStoreErr(err)
}

// --- Trials ---

func (s *GormStore) CreateTrial(ctx context.Context, trial models.TrialRecord) (models.TrialRecord, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acct models.Account
		if err := tx.Where("id = ?", trial.AccountID).First(&acct).Error; err != nil {
			return translateStoreErr(err)
		}
		// Guarded flag flip: matches zero rows when another starter (or any
		// earlier trial, however it ended) got there first.
		res := tx.Model(&models.Account{}).
			Where("id = ? AND trial_used = ?", trial.AccountID, false).
			Update("trial_used", true)
		if res.Error != nil {
			return translateStoreErr(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrPreconditionFailed
		}
		return translateStoreErr(tx.Create(&trial).Error)
	})
	if err != nil {
		return models.TrialRecord{}, err
	}
	return trial, nil
}

func (s *GormStore) GetTrial(ctx context.Context, accountID string) (models.TrialRecord, error) {
	var trial models.TrialRecord
	err := s.DB.WithContext(ctx).Where("account_id = ?", accountID).First(&trial).Error
	return trial, translateStoreErr(err)
}

func (s *GormStore) EndTrial(ctx context.Context, accountID string, status models.TrialStatus) (models.TrialRecord, error) {
	var trial models.TrialRecord
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).First(&trial).Error; err != nil {
			return translateStoreErr(err)
		}
		if trial.Status.Terminal() {
			return nil // idempotent: keep the first terminal state
		}
		res := tx.Model(&models.TrialRecord{}).
			Where("account_id = ? AND status = ?", accountID, models.TrialStatusActive).
			Update("status", status)
		if res.Error != nil {
			return translateStoreErr(res.Error)
		}
		// Zero rows means another ender won; the re-read below returns
		// whatever state it left.
		return translateStoreErr(tx.Where("account_id = ?", accountID).First(&trial).Error)
	})
	if err != nil {
		return models.TrialRecord{}, err
	}
	return trial, nil
}

func (s *GormStore) ExpireTrialsBefore(ctx context.Context, now time.Time) ([]models.TrialRecord, error) {
	var lapsed []models.TrialRecord
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ? AND end_date < ?", models.TrialStatusActive, now).
			Find(&lapsed).Error; err != nil {
			return translateStoreErr(err)
		}
		if len(lapsed) == 0 {
			return nil
		}
		ids := make([]string, 0, len(lapsed))
		for i := range lapsed {
			ids = append(ids, lapsed[i].ID)
			lapsed[i].Status = models.TrialStatusExpired
		}
		res := tx.Model(&models.TrialRecord{}).
			Where("id IN ? AND status = ?", ids, models.TrialStatusActive).
			Update("status", models.TrialStatusExpired)
		return translateStoreErr(res.Error)
	})
	if err != nil {
		return nil, err
	}
	return lapsed, nil
}

// --- Referrals ---

func (s *GormStore) RecordReferral(ctx context.Context, rec models.ReferralRecord, referrerTxn, refereeTxn models.TokenTransaction) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Unique referee_id index: the at-most-once redemption gate.
		if err := tx.Create(&rec).Error; err != nil {
			return translateStoreErr(err)
		}
		if err := tx.Create(&referrerTxn).Error; err != nil {
			return translateStoreErr(err)
		}
		if err := tx.Create(&refereeTxn).Error; err != nil {
			return translateStoreErr(err)
		}
		for _, txn := range []models.TokenTransaction{referrerTxn, refereeTxn} {
			res := tx.Model(&models.Account{}).
				Where("id = ?", txn.AccountID).
				Update("token_balance", gorm.Expr("token_balance + ?", txn.Amount))
			if res.Error != nil {
				return translateStoreErr(res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrRecordNotFound
			}
		}
		res := tx.Model(&models.Account{}).
			Where("id = ?", rec.RefereeID).
			Update("referral_used", true)
		return translateStoreErr(res.Error)
	})
}

func (s *GormStore) GetReferralByReferee(ctx context.Context, refereeID string) (models.ReferralRecord, error) {
	var rec models.ReferralRecord
	err := s.DB.WithContext(ctx).Where("referee_id = ?", refereeID).First(&rec).Error
	return rec, translateStoreErr(err)
}

// --- Badges ---

func (s *GormStore) CreateBadgeGrant(ctx context.Context, grant models.BadgeGrant) (models.BadgeGrant, error) {
	if err := s.DB.WithContext(ctx).Create(&grant).Error; err != nil {
		return models.BadgeGrant{}, translateStoreErr(err)
	}
	return grant, nil
}

func (s *GormStore) GetBadgeGrant(ctx context.Context, accountID, badgeKey string) (models.BadgeGrant, error) {
	var grant models.BadgeGrant
	err := s.DB.WithContext(ctx).
		Where("account_id = ? AND badge_key = ?", accountID, badgeKey).
		First(&grant).Error
	return grant, translateStoreErr(err)
}

func (s *GormStore) ListBadgeGrants(ctx context.Context, accountID string) ([]models.BadgeGrant, error) {
	var grants []models.BadgeGrant
	err := s.DB.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("earned_at ASC").
		Find(&grants).Error
	return grants, translateStoreErr(err)
}

// --- Metrics ---

func (s *GormStore) SetFirstPurchaseDate(ctx context.Context, accountID string, at time.Time) error {
	res := s.DB.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND first_purchase_date IS NULL", accountID).
		Update("first_purchase_date", at)
	if res.Error != nil {
		return translateStoreErr(res.Error)
	}
	if res.RowsAffected == 0 {
		// Already set, or no such account; only the latter is an error.
		var count int64
		if err := s.DB.WithContext(ctx).Model(&models.Account{}).
			Where("id = ?", accountID).Count(&count).Error; err != nil {
			return translateStoreErr(err)
		}
		if count == 0 {
			return ErrRecordNotFound
		}
	}
	return nil
}

func (s *GormStore) SetTotalFortunesSent(ctx context.Context, accountID string, total int64) error {
	res := s.DB.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("total_fortunes_sent", total)
	if res.Error != nil {
		return translateStoreErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// --- Badge catalog ---

func (s *GormStore) UpsertBadgeCatalogEntry(ctx context.Context, entry models.BadgeCatalogEntry) (models.BadgeCatalogEntry, error) {
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "badge_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "icon_url", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return models.BadgeCatalogEntry{}, translateStoreErr(err)
	}
	return entry, nil
}

func (s *GormStore) ListBadgeCatalog(ctx context.Context) ([]models.BadgeCatalogEntry, error) {
	var entries []models.BadgeCatalogEntry
	err := s.DB.WithContext(ctx).Order("badge_key ASC").Find(&entries).Error
	return entries, translateStoreErr(err)
}
