package api

import (
	"context"
	"fmt"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Lock marks amount of the balance as locked. Locked funds stay in balance;
// they are only excluded from what can be withdrawn.
func (s *AccountService) Lock(ctx context.Context, userId string, amount decimal.Decimal) (*models.Account, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: lock amount must be positive", store.ErrInvalidAmount)
	}

	account, err := s.accounts.Apply(ctx, userId, func(a models.Account) (models.Account, error) {
		if a.Available().LessThan(amount) {
			return a, fmt.Errorf("%w: cannot lock %s, available %s", store.ErrInsufficientBalance, amount.String(), a.Available().String())
		}
		a.Locked = a.Locked.Add(amount)
		return a, nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Funds locked",
		zap.String("user_id", userId),
		zap.String("amount", amount.String()),
		zap.String("locked", account.Locked.String()))
	return account, nil
}

// Unlock releases up to amount of locked funds.
func (s *AccountService) Unlock(ctx context.Context, userId string, amount decimal.Decimal) (*models.Account, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: unlock amount must be positive", store.ErrInvalidAmount)
	}

	return s.accounts.Apply(ctx, userId, func(a models.Account) (models.Account, error) {
		a.Locked = decimal.Max(decimal.Zero, a.Locked.Sub(amount))
		return a, nil
	})
}

func (s *AccountService) Locked(ctx context.Context, userId string) (decimal.Decimal, error) {
	account, err := s.Account(ctx, userId)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Locked, nil
}

// History returns a user's most recent transactions.
func (s *AccountService) History(ctx context.Context, userId string, limit int, typeFilter models.TxType) ([]models.Transaction, error) {
	if userId == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	transactions, err := s.txLog.ListForUser(ctx, userId, limit, typeFilter)
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("user_id", userId),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve transaction history: %w", err)
	}
	return transactions, nil
}
