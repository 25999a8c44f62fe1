package api

import (
	"context"
	"fmt"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// depositCredit is what one verified deposit did to the ledger.
type depositCredit struct {
	account    *models.Account
	net        decimal.Decimal
	fee        decimal.Decimal
	firstEver  bool
	referrerId string
}

// Deposit credits a verified deposit immediately. Callers must have verified
// the funds; nothing here checks them.
func (s *AccountService) Deposit(ctx context.Context, userId string, gross decimal.Decimal) (*models.OperationResult, error) {
	zap.L().Info("Processing deposit",
		zap.String("user_id", userId),
		zap.String("gross_amount", gross.String()))

	credit, err := s.creditDeposit(ctx, userId, gross)
	if err != nil {
		return nil, err
	}

	txId, err := s.recordCompleted(ctx, store.RecordParams{
		UserId: userId,
		Type:   models.TxDeposit,
		Amount: gross,
		Notes:  "deposit credited",
	})
	if err != nil {
		return nil, err
	}

	if err := s.finishDeposit(ctx, userId, txId, credit); err != nil {
		return nil, err
	}

	return newResult(credit.account, txId, credit.net), nil
}

// RequestDeposit opens a PENDING deposit awaiting admin verification.
func (s *AccountService) RequestDeposit(ctx context.Context, userId string, gross decimal.Decimal, notes string) (string, error) {
	if gross.LessThan(s.cfg.MinDeposit) {
		return "", fmt.Errorf("%w: minimum deposit is %s", store.ErrInvalidAmount, s.cfg.MinDeposit.StringFixed(2))
	}
	if _, err := s.accounts.Get(ctx, userId); err != nil {
		return "", err
	}

	txId, err := s.txLog.Record(ctx, store.RecordParams{
		UserId: userId,
		Type:   models.TxDeposit,
		Amount: gross,
		Notes:  notes,
	})
	if err != nil {
		return "", err
	}

	zap.L().Info("Deposit request recorded",
		zap.String("user_id", userId),
		zap.String("tx_id", txId),
		zap.String("gross_amount", gross.String()))
	return txId, nil
}

// ApproveDeposit credits a PENDING deposit request and completes it.
func (s *AccountService) ApproveDeposit(ctx context.Context, txId, notes string) (*models.OperationResult, error) {
	s.approvalMu.Lock()
	defer s.approvalMu.Unlock()

	request, err := s.pendingRequest(ctx, txId, models.TxDeposit)
	if err != nil {
		return nil, err
	}

	var credit *depositCredit
	if w, ok := s.unsettled[txId]; ok {
		zap.L().Info("Completing deposit request credited earlier", zap.String("tx_id", txId))
		credit = w.deposit
	} else {
		credit, err = s.creditDeposit(ctx, request.UserId, request.Amount)
		if err != nil {
			return nil, err
		}
	}

	if err := s.settle(ctx, txId, models.StatusCompleted, notes); err != nil {
		s.markUnsettled(txId, &ledgerWrite{account: credit.account, deposit: credit})
		zap.L().Error("Deposit credited but request not completed",
			zap.String("tx_id", txId),
			zap.String("user_id", request.UserId),
			zap.Error(err))
		return nil, fmt.Errorf("deposit credited but request %s not completed: %w", txId, err)
	}
	delete(s.unsettled, txId)

	if err := s.finishDeposit(ctx, request.UserId, txId, credit); err != nil {
		return nil, err
	}

	return newResult(credit.account, txId, credit.net), nil
}

// RejectDeposit closes a PENDING deposit request without touching the ledger.
func (s *AccountService) RejectDeposit(ctx context.Context, txId, reason string) error {
	s.approvalMu.Lock()
	defer s.approvalMu.Unlock()

	if _, err := s.pendingRequest(ctx, txId, models.TxDeposit); err != nil {
		return err
	}
	if err := s.rejectUnsettled(txId); err != nil {
		return err
	}
	if err := s.settle(ctx, txId, models.StatusRejected, reason); err != nil {
		return err
	}

	zap.L().Info("Deposit request rejected", zap.String("tx_id", txId), zap.String("reason", reason))
	return nil
}

// creditDeposit applies net = gross * (1 - fee_rate) to the ledger and stamps
// the first-deposit fields on a user's first deposit.
func (s *AccountService) creditDeposit(ctx context.Context, userId string, gross decimal.Decimal) (*depositCredit, error) {
	if !gross.IsPositive() {
		return nil, fmt.Errorf("%w: deposit must be positive, got %s", store.ErrInvalidAmount, gross.String())
	}

	net := gross.Mul(decimal.NewFromInt(1).Sub(s.cfg.FeeRate)).Round(2)
	credit := &depositCredit{net: net, fee: gross.Sub(net)}
	now := s.now().UTC()

	account, err := s.accounts.Apply(ctx, userId, func(a models.Account) (models.Account, error) {
		a.Balance = a.Balance.Add(net)
		a.TotalDeposits = a.TotalDeposits.Add(net)
		credit.firstEver = !a.FirstDeposit
		credit.referrerId = a.ReferrerId
		if credit.firstEver {
			a.FirstDeposit = true
			a.FirstDepositDate = now
			a.FirstDepositAmount = net
		}
		return a, nil
	})
	if err != nil {
		zap.L().Error("Deposit processing failed",
			zap.String("user_id", userId),
			zap.String("gross_amount", gross.String()),
			zap.Error(err))
		return nil, err
	}
	credit.account = account

	zap.L().Info("Deposit credited",
		zap.String("user_id", userId),
		zap.String("net_amount", net.String()),
		zap.String("fee", credit.fee.String()),
		zap.String("new_balance", account.Balance.String()),
		zap.Bool("first_deposit", credit.firstEver))
	return credit, nil
}

// finishDeposit logs the fee and pays the referral bonus on a first deposit.
func (s *AccountService) finishDeposit(ctx context.Context, userId, depositTxId string, credit *depositCredit) error {
	if credit.fee.IsPositive() {
		if _, err := s.recordCompleted(ctx, store.RecordParams{
			UserId: userId,
			Type:   models.TxFee,
			Amount: credit.fee,
			Notes:  "deposit fee for " + depositTxId,
		}); err != nil {
			return err
		}
	}

	if credit.firstEver && credit.referrerId != "" && s.cfg.ReferralBonusRate.IsPositive() {
		if _, err := s.CreditReferral(ctx, credit.referrerId, userId, credit.net, s.cfg.ReferralBonusRate); err != nil {
			zap.L().Error("Failed to credit referral bonus",
				zap.String("referrer_id", credit.referrerId),
				zap.String("user_id", userId),
				zap.Error(err))
		}
	}
	return nil
}
