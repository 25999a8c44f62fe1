package api

import (
	"context"
	"fmt"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WithdrawRequest validates a withdrawal and records it as PENDING. The
// balance is only debited on approval.
func (s *AccountService) WithdrawRequest(ctx context.Context, userId string, amount decimal.Decimal, address string) (*models.OperationResult, error) {
	if userId == "" || address == "" {
		return nil, fmt.Errorf("user_id and address are required")
	}
	if amount.LessThan(s.cfg.MinWithdrawal) || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: minimum withdrawal is %s", store.ErrInvalidAmount, s.cfg.MinWithdrawal.StringFixed(2))
	}

	account, err := s.accounts.Get(ctx, userId)
	if err != nil {
		return nil, err
	}

	if account.TotalDeposits.IsZero() && account.Balance.IsPositive() {
		zap.L().Warn("Withdrawal blocked on account with balance but no deposits",
			zap.String("user_id", userId),
			zap.String("balance", account.Balance.String()))
		return nil, fmt.Errorf("%w: balance without recorded deposits", store.ErrAccountAnomaly)
	}

	if available := s.withdrawable(*account); amount.GreaterThan(available) {
		return nil, fmt.Errorf("%w: can withdraw at most %s", store.ErrInsufficientBalance, available.StringFixed(2))
	}

	if s.limiter != nil {
		ok, err := s.limiter.CanWithdraw(ctx, userId)
		if err != nil {
			return nil, err
		}
		if !ok {
			next, _ := s.limiter.NextAllowed(ctx, userId)
			return nil, fmt.Errorf("%w: next withdrawal available %s", store.ErrWithdrawalLimited, next.Format("2006-01-02"))
		}
	}

	txId, err := s.txLog.Record(ctx, store.RecordParams{
		UserId:  userId,
		Type:    models.TxWithdrawal,
		Amount:  amount,
		Address: address,
		Notes:   "withdrawal requested",
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal request recorded",
		zap.String("user_id", userId),
		zap.String("tx_id", txId),
		zap.String("amount", amount.String()),
		zap.String("address", address))

	return newResult(account, txId, amount), nil
}

// ApproveWithdrawal debits an approved withdrawal and logs it. The balance and
// the withdrawal limit are checked again here since either may have moved
// since the request.
func (s *AccountService) ApproveWithdrawal(ctx context.Context, userId string, amount decimal.Decimal) (*models.OperationResult, error) {
	s.approvalMu.Lock()
	defer s.approvalMu.Unlock()

	account, err := s.debitWithdrawal(ctx, userId, amount)
	if err != nil {
		return nil, err
	}

	txId, err := s.recordCompleted(ctx, store.RecordParams{
		UserId: userId,
		Type:   models.TxWithdrawal,
		Amount: amount,
		Notes:  "withdrawal approved",
	})
	if err != nil {
		return nil, err
	}

	return newResult(account, txId, amount), nil
}

// ApproveWithdrawalTx settles a PENDING withdrawal request. The request is
// completed only after the ledger debit lands.
func (s *AccountService) ApproveWithdrawalTx(ctx context.Context, txId, notes string) (*models.OperationResult, error) {
	s.approvalMu.Lock()
	defer s.approvalMu.Unlock()

	request, err := s.pendingRequest(ctx, txId, models.TxWithdrawal)
	if err != nil {
		return nil, err
	}

	var account *models.Account
	if w, ok := s.unsettled[txId]; ok {
		zap.L().Info("Completing withdrawal request debited earlier", zap.String("tx_id", txId))
		account = w.account
	} else {
		account, err = s.debitWithdrawal(ctx, request.UserId, request.Amount)
		if err != nil {
			return nil, err
		}
	}

	if err := s.settle(ctx, txId, models.StatusCompleted, notes); err != nil {
		s.markUnsettled(txId, &ledgerWrite{account: account})
		zap.L().Error("Withdrawal debited but request not completed",
			zap.String("tx_id", txId),
			zap.String("user_id", request.UserId),
			zap.Error(err))
		return nil, fmt.Errorf("withdrawal debited but request %s not completed: %w", txId, err)
	}
	delete(s.unsettled, txId)

	return newResult(account, txId, request.Amount), nil
}

// RejectWithdrawal closes a PENDING withdrawal request. Nothing was debited.
func (s *AccountService) RejectWithdrawal(ctx context.Context, txId, reason string) error {
	s.approvalMu.Lock()
	defer s.approvalMu.Unlock()

	if _, err := s.pendingRequest(ctx, txId, models.TxWithdrawal); err != nil {
		return err
	}
	if err := s.rejectUnsettled(txId); err != nil {
		return err
	}
	if err := s.settle(ctx, txId, models.StatusRejected, reason); err != nil {
		return err
	}

	zap.L().Info("Withdrawal request rejected", zap.String("tx_id", txId), zap.String("reason", reason))
	return nil
}

func (s *AccountService) debitWithdrawal(ctx context.Context, userId string, amount decimal.Decimal) (*models.Account, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: withdrawal must be positive, got %s", store.ErrInvalidAmount, amount.String())
	}

	// another request of the same user may have been approved in between
	if s.limiter != nil {
		ok, err := s.limiter.CanWithdraw(ctx, userId)
		if err != nil {
			return nil, err
		}
		if !ok {
			next, _ := s.limiter.NextAllowed(ctx, userId)
			return nil, fmt.Errorf("%w: %w: next withdrawal available %s",
				store.ErrStaleRequest, store.ErrWithdrawalLimited, next.Format("2006-01-02"))
		}
	}

	account, err := s.accounts.Apply(ctx, userId, func(a models.Account) (models.Account, error) {
		if a.Available().LessThan(amount) {
			return a, fmt.Errorf("%w: %w: available %s, requested %s",
				store.ErrStaleRequest, store.ErrInsufficientBalance, a.Available().String(), amount.String())
		}
		a.Balance = a.Balance.Sub(amount)
		a.TotalWithdrawals = a.TotalWithdrawals.Add(amount)
		return a, nil
	})
	if err != nil {
		zap.L().Error("Withdrawal processing failed",
			zap.String("user_id", userId),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.RecordWithdrawal(ctx, userId); err != nil {
			zap.L().Warn("Failed to record withdrawal for rate limiting",
				zap.String("user_id", userId),
				zap.Error(err))
		}
	}

	zap.L().Info("Withdrawal processed successfully",
		zap.String("user_id", userId),
		zap.String("amount", amount.String()),
		zap.String("new_balance", account.Balance.String()))
	return account, nil
}

// Withdrawable is what userId may request right now.
func (s *AccountService) Withdrawable(ctx context.Context, userId string) (decimal.Decimal, error) {
	account, err := s.Account(ctx, userId)
	if err != nil {
		return decimal.Zero, err
	}
	return s.withdrawable(*account), nil
}

// withdrawable is balance - locked, further capped to profits while the
// deposited principal has not yet been earned back.
func (s *AccountService) withdrawable(a models.Account) decimal.Decimal {
	available := a.Available()
	if !s.cfg.PrincipalLock || roiReached(a) {
		return available
	}
	principal := decimal.Max(decimal.Zero, a.TotalDeposits.Sub(a.TotalInterest))
	profits := decimal.Max(decimal.Zero, a.Balance.Sub(principal))
	return decimal.Min(available, profits)
}

// roiReached is true once accumulated profits cover the deposits.
func roiReached(a models.Account) bool {
	return a.TotalDeposits.IsPositive() && a.TotalInterest.GreaterThanOrEqual(a.TotalDeposits)
}
