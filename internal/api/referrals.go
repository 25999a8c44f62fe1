package api

import (
	"context"
	"fmt"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreditReferral pays referrerId bonus = base * rate into both balance and
// referral_earnings and logs a REFERRAL naming relatedUser.
func (s *AccountService) CreditReferral(ctx context.Context, referrerId, relatedUser string, base, rate decimal.Decimal) (*models.OperationResult, error) {
	bonus := base.Mul(rate).Round(2)
	if !bonus.IsPositive() {
		return nil, fmt.Errorf("%w: referral bonus must be positive, got %s", store.ErrInvalidAmount, bonus.String())
	}

	account, err := s.accounts.Apply(ctx, referrerId, func(a models.Account) (models.Account, error) {
		a.Balance = a.Balance.Add(bonus)
		a.ReferralEarnings = a.ReferralEarnings.Add(bonus)
		return a, nil
	})
	if err != nil {
		return nil, err
	}

	txId, err := s.recordCompleted(ctx, store.RecordParams{
		UserId:      referrerId,
		Type:        models.TxReferral,
		Amount:      bonus,
		RelatedUser: relatedUser,
		Notes:       "Bonus from referral deposit",
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Referral bonus credited",
		zap.String("referrer_id", referrerId),
		zap.String("related_user", relatedUser),
		zap.String("bonus", bonus.String()))

	return newResult(account, txId, bonus), nil
}

// ReferralInfo is the referral summary shown to a user.
type ReferralInfo struct {
	ReferralId string          `json:"referral_id"`
	Count      int64           `json:"referral_count"`
	Earnings   decimal.Decimal `json:"referral_earnings"`
}

func (s *AccountService) ReferralInfo(ctx context.Context, userId string) (*ReferralInfo, error) {
	account, err := s.Account(ctx, userId)
	if err != nil {
		return nil, err
	}
	return &ReferralInfo{
		ReferralId: account.ReferralId,
		Count:      account.ReferralCount,
		Earnings:   account.ReferralEarnings,
	}, nil
}
