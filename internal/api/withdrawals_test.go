package api

import (
	"context"
	"errors"
	"testing"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func fund(t *testing.T, s *AccountService, userId, gross string) {
	t.Helper()
	if _, err := s.Deposit(context.Background(), userId, dec(gross)); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
}

func TestWithdrawal_StaleBalance(t *testing.T) {
	cfg := testOperationsConfig()
	cfg.FeeRate = decimal.Zero
	s, db := setupTestService(t, cfg)
	ctx := context.Background()
	register(t, s, "user1", "")
	fund(t, s, "user1", "500")

	request, err := s.WithdrawRequest(ctx, "user1", dec("300"), "TXaddress")
	if err != nil {
		t.Fatalf("WithdrawRequest failed: %v", err)
	}

	// a concurrent operation drains the balance before approval
	if _, err := db.Apply(ctx, "user1", func(a models.Account) (models.Account, error) {
		a.Balance = dec("100")
		return a, nil
	}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	_, err = s.ApproveWithdrawalTx(ctx, request.TxId, "")
	if !errors.Is(err, store.ErrInsufficientBalance) || !errors.Is(err, store.ErrStaleRequest) {
		t.Fatalf("Expected stale insufficient balance, got %v", err)
	}

	account, _ := s.Account(ctx, "user1")
	if !account.Balance.Equal(dec("100")) || !account.TotalWithdrawals.IsZero() {
		t.Errorf("Expected balance 100 untouched, got %s (withdrawals %s)", account.Balance, account.TotalWithdrawals)
	}
	tx, _ := db.GetTransaction(ctx, request.TxId)
	if tx.Status != models.StatusPending {
		t.Errorf("Expected request to stay PENDING, got %s", tx.Status)
	}
	if ok, _ := s.limiter.CanWithdraw(ctx, "user1"); !ok {
		t.Error("Expected failed approval not to consume the cooldown")
	}
}

func TestApproveWithdrawalTx(t *testing.T) {
	s, db := setupTestService(t, testOperationsConfig())
	ctx := context.Background()
	register(t, s, "user1", "")
	fund(t, s, "user1", "1000")

	request, err := s.WithdrawRequest(ctx, "user1", dec("200"), "TXaddress")
	if err != nil {
		t.Fatalf("WithdrawRequest failed: %v", err)
	}
	account, _ := s.Account(ctx, "user1")
	if !account.Balance.Equal(dec("900")) {
		t.Errorf("Expected request not to debit, got %s", account.Balance)
	}

	result, err := s.ApproveWithdrawalTx(ctx, request.TxId, "sent")
	if err != nil {
		t.Fatalf("ApproveWithdrawalTx failed: %v", err)
	}
	if !result.NewBalance.Equal(dec("700")) {
		t.Errorf("Expected balance 700, got %s", result.NewBalance)
	}

	account, _ = s.Account(ctx, "user1")
	if !account.TotalWithdrawals.Equal(dec("200")) {
		t.Errorf("Expected total_withdrawals 200, got %s", account.TotalWithdrawals)
	}

	_, err = s.WithdrawRequest(ctx, "user1", dec("100"), "TXaddress")
	if !errors.Is(err, store.ErrWithdrawalLimited) {
		t.Errorf("Expected ErrWithdrawalLimited inside the cooldown, got %v", err)
	}

	assertReconciled(t, db)
}

func TestApproveWithdrawal_Direct(t *testing.T) {
	s, db := setupTestService(t, testOperationsConfig())
	ctx := context.Background()
	register(t, s, "user1", "")
	fund(t, s, "user1", "1000")

	if _, err := s.ApproveWithdrawal(ctx, "user1", dec("1000")); !errors.Is(err, store.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}

	result, err := s.ApproveWithdrawal(ctx, "user1", dec("400"))
	if err != nil {
		t.Fatalf("ApproveWithdrawal failed: %v", err)
	}
	if !result.NewBalance.Equal(dec("500")) {
		t.Errorf("Expected balance 500, got %s", result.NewBalance)
	}

	if _, err := s.ApproveWithdrawal(ctx, "ghost", dec("1")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown user, got %v", err)
	}

	assertReconciled(t, db)
}

func TestRejectWithdrawal(t *testing.T) {
	s, db := setupTestService(t, testOperationsConfig())
	ctx := context.Background()
	register(t, s, "user1", "")
	fund(t, s, "user1", "1000")

	request, err := s.WithdrawRequest(ctx, "user1", dec("100"), "TXaddress")
	if err != nil {
		t.Fatalf("WithdrawRequest failed: %v", err)
	}
	if err := s.RejectWithdrawal(ctx, request.TxId, "address invalid"); err != nil {
		t.Fatalf("RejectWithdrawal failed: %v", err)
	}

	tx, _ := db.GetTransaction(ctx, request.TxId)
	if tx.Status != models.StatusRejected {
		t.Errorf("Expected REJECTED, got %s", tx.Status)
	}
	if ok, _ := s.limiter.CanWithdraw(ctx, "user1"); !ok {
		t.Error("Expected rejection not to consume the cooldown")
	}
}

func TestWithdrawRequest_Validation(t *testing.T) {
	cfg := testOperationsConfig()
	cfg.PrincipalLock = true
	s, db := setupTestService(t, cfg)
	ctx := context.Background()

	register(t, s, "funded", "")
	fund(t, s, "funded", "1000")
	// 100 of profit on 900 principal
	if _, err := db.Apply(ctx, "funded", func(a models.Account) (models.Account, error) {
		a.Balance = a.Balance.Add(dec("100"))
		a.TotalInterest = dec("100")
		return a, nil
	}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	register(t, s, "anomaly", "")
	if _, err := db.Apply(ctx, "anomaly", func(a models.Account) (models.Account, error) {
		a.Balance = dec("500")
		return a, nil
	}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	tests := []struct {
		name   string
		userId string
		amount string
		want   error
	}{
		{"below minimum", "funded", "49.99", store.ErrInvalidAmount},
		{"unknown user", "ghost", "100", store.ErrNotFound},
		{"balance without deposits", "anomaly", "100", store.ErrAccountAnomaly},
		{"principal still locked", "funded", "300", store.ErrInsufficientBalance},
		{"profits only", "funded", "200", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.WithdrawRequest(ctx, tt.userId, dec(tt.amount), "TXaddress")
			if tt.want == nil {
				if err != nil {
					t.Errorf("Expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	available, err := s.Withdrawable(ctx, "funded")
	if err != nil || !available.Equal(dec("200")) {
		t.Errorf("Expected withdrawable 200, got %s err=%v", available, err)
	}
}

func TestWithdrawable_RoiReached(t *testing.T) {
	cfg := testOperationsConfig()
	cfg.PrincipalLock = true
	s, db := setupTestService(t, cfg)
	ctx := context.Background()
	register(t, s, "user1", "")
	fund(t, s, "user1", "1000")

	if _, err := db.Apply(ctx, "user1", func(a models.Account) (models.Account, error) {
		a.Balance = a.Balance.Add(dec("900"))
		a.TotalInterest = dec("900")
		return a, nil
	}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	available, _ := s.Withdrawable(ctx, "user1")
	if !available.Equal(dec("1800")) {
		t.Errorf("Expected full balance withdrawable after ROI, got %s", available)
	}
}

func TestApproveWithdrawalTx_LimitCheckedAgain(t *testing.T) {
	s, db := setupTestService(t, testOperationsConfig())
	ctx := context.Background()
	register(t, s, "user1", "")
	fund(t, s, "user1", "1000")

	// both requests pass while nothing has been approved yet
	first, err := s.WithdrawRequest(ctx, "user1", dec("100"), "TXaddress")
	if err != nil {
		t.Fatalf("first WithdrawRequest failed: %v", err)
	}
	second, err := s.WithdrawRequest(ctx, "user1", dec("100"), "TXaddress")
	if err != nil {
		t.Fatalf("second WithdrawRequest failed: %v", err)
	}

	if _, err := s.ApproveWithdrawalTx(ctx, first.TxId, ""); err != nil {
		t.Fatalf("first approval failed: %v", err)
	}

	_, err = s.ApproveWithdrawalTx(ctx, second.TxId, "")
	if !errors.Is(err, store.ErrWithdrawalLimited) || !errors.Is(err, store.ErrStaleRequest) {
		t.Fatalf("Expected stale withdrawal limit on second approval, got %v", err)
	}

	account, _ := s.Account(ctx, "user1")
	if !account.TotalWithdrawals.Equal(dec("100")) || !account.Balance.Equal(dec("800")) {
		t.Errorf("Expected one withdrawal of 100, got total %s balance %s", account.TotalWithdrawals, account.Balance)
	}
	tx, _ := db.GetTransaction(ctx, second.TxId)
	if tx.Status != models.StatusPending {
		t.Errorf("Expected second request to stay PENDING, got %s", tx.Status)
	}

	if _, err := s.ApproveWithdrawal(ctx, "user1", dec("50")); !errors.Is(err, store.ErrWithdrawalLimited) {
		t.Errorf("Expected direct withdrawal to hit the limit, got %v", err)
	}

	assertReconciled(t, db)
}

func TestApproveWithdrawalTx_RetryAfterStatusFailure(t *testing.T) {
	cfg := testOperationsConfig()
	_, db := setupTestService(t, cfg)
	s, log := withFlakyLog(db, cfg)
	ctx := context.Background()
	register(t, s, "user1", "")
	fund(t, s, "user1", "1000")

	request, err := s.WithdrawRequest(ctx, "user1", dec("200"), "TXaddress")
	if err != nil {
		t.Fatalf("WithdrawRequest failed: %v", err)
	}

	log.failures = 1
	if _, err := s.ApproveWithdrawalTx(ctx, request.TxId, ""); !errors.Is(err, store.ErrPersistence) {
		t.Fatalf("Expected ErrPersistence from the status update, got %v", err)
	}
	if err := s.RejectWithdrawal(ctx, request.TxId, ""); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected debited request not to be rejectable, got %v", err)
	}

	// the cooldown is already used, so the retry must not debit again
	if _, err := s.ApproveWithdrawalTx(ctx, request.TxId, ""); err != nil {
		t.Fatalf("retried ApproveWithdrawalTx failed: %v", err)
	}

	account, _ := s.Account(ctx, "user1")
	if !account.Balance.Equal(dec("700")) || !account.TotalWithdrawals.Equal(dec("200")) {
		t.Errorf("Expected a single debit of 200, got balance %s withdrawals %s", account.Balance, account.TotalWithdrawals)
	}
	tx, _ := db.GetTransaction(ctx, request.TxId)
	if tx.Status != models.StatusCompleted {
		t.Errorf("Expected COMPLETED after retry, got %s", tx.Status)
	}

	assertReconciled(t, db)
}
