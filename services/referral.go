package services

import (
	"context"
	"errors"
	"log"
	"time"

	"fortune-entitlements-service/models"

	"github.com/google/uuid"
)

// ReferralBonusTokens is credited to each side of a redemption.
const ReferralBonusTokens int64 = 3

// ReferralService processes one-time invite-code redemptions crediting two
// accounts atomically.
type ReferralService struct {
	Store  Store
	Badges *BadgeService
}

func NewReferralService(store Store, badges *BadgeService) *ReferralService {
	return &ReferralService{Store: store, Badges: badges}
}

// RedeemResult reports a successful redemption.
type RedeemResult struct {
	BonusAwarded int64  `json:"bonus_awarded"`
	ReferrerID   string `json:"referrer_id"`
}

// RedeemReferralCode validates and credits a code entered by accountID.
// Validation order: own code, already redeemed, unknown code. The unique
// referee index in the referral table is the race guard: two devices
// redeeming different codes at once still produce exactly one redemption.
func (s *ReferralService) RedeemReferralCode(ctx context.Context, accountID, code string, now time.Time) (RedeemResult, error) {
	normalized := NormalizeReferralCode(code)

	acct, err := s.Store.GetAccount(ctx, accountID)
	if err != nil {
		return RedeemResult{}, err
	}
	if normalized == acct.ReferralCode {
		return RedeemResult{}, engineErr(CodeInvalidReferralCodeSelf, "cannot redeem your own referral code")
	}

	if _, err := s.Store.GetReferralByReferee(ctx, accountID); err == nil {
		return RedeemResult{}, engineErr(CodeReferralAlreadyUsed, "account %s already redeemed a referral code", accountID)
	} else if !errors.Is(err, ErrRecordNotFound) {
		return RedeemResult{}, err
	}

	referrer, err := s.Store.GetAccountByReferralCode(ctx, normalized)
	if errors.Is(err, ErrRecordNotFound) {
		return RedeemResult{}, engineErr(CodeReferralCodeNotFound, "referral code %q does not exist", normalized)
	}
	if err != nil {
		return RedeemResult{}, err
	}

	rec := models.ReferralRecord{
		ID:         uuid.NewString(),
		ReferrerID: referrer.ID,
		RefereeID:  accountID,
		Code:       normalized,
		UsedAt:     now,
	}
	referrerTxn := models.TokenTransaction{
		ID:          uuid.NewString(),
		AccountID:   referrer.ID,
		Amount:      ReferralBonusTokens,
		Kind:        models.TransactionKindReferrerBonus,
		ReferenceID: rec.ID,
	}
	refereeTxn := models.TokenTransaction{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Amount:      ReferralBonusTokens,
		Kind:        models.TransactionKindRefereeBonus,
		ReferenceID: rec.ID,
	}

	if err := s.Store.RecordReferral(ctx, rec, referrerTxn, refereeTxn); err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			// Concurrent redemption from another device got in first.
			return RedeemResult{}, engineErr(CodeReferralAlreadyUsed, "account %s already redeemed a referral code", accountID)
		}
		return RedeemResult{}, err
	}
	log.Printf("[referral] %s redeemed %s, credited %d to both sides", accountID, normalized, ReferralBonusTokens)

	if s.Badges != nil {
		for _, id := range []string{accountID, referrer.ID} {
			if _, err := s.Badges.EvaluateAll(ctx, id); err != nil {
				log.Printf("[referral] badge evaluation after redemption failed for %s: %v", id, err)
			}
		}
	}

	return RedeemResult{BonusAwarded: ReferralBonusTokens, ReferrerID: referrer.ID}, nil
}
