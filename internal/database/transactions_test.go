package database

import (
	"context"
	"errors"
	"testing"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestRecord_GeneratesIdAndStartsPending(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	txId, err := service.Record(ctx, store.RecordParams{
		UserId:  "user1",
		Type:    models.TxWithdrawal,
		Amount:  decimal.NewFromInt(-300),
		Address: "TXaddr",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if txId == "" {
		t.Fatal("Expected generated tx id")
	}

	tx, err := service.GetTransaction(ctx, txId)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if tx.Status != models.StatusPending {
		t.Errorf("Expected PENDING, got %s", tx.Status)
	}
	if !tx.Amount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected stored magnitude 300, got %s", tx.Amount)
	}
	if tx.Address != "TXaddr" {
		t.Errorf("Expected address TXaddr, got %s", tx.Address)
	}
}

func TestRecord_DuplicateId(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	params := store.RecordParams{Id: "tx1", UserId: "user1", Type: models.TxDeposit, Amount: decimal.NewFromInt(100)}
	if _, err := service.Record(ctx, params); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	_, err := service.Record(ctx, params)
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Errorf("Expected ErrDuplicateTransaction, got %v", err)
	}
}

func TestSetStatus_Transitions(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	txId, err := service.Record(ctx, store.RecordParams{UserId: "user1", Type: models.TxDeposit, Amount: decimal.NewFromInt(100), Notes: "requested"})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	ok, err := service.SetStatus(ctx, txId, models.StatusCompleted, "approved by admin")
	if err != nil || !ok {
		t.Fatalf("Expected successful transition, got ok=%v err=%v", ok, err)
	}

	tx, _ := service.GetTransaction(ctx, txId)
	if tx.Status != models.StatusCompleted {
		t.Errorf("Expected COMPLETED, got %s", tx.Status)
	}
	if tx.Notes != "requested | approved by admin" {
		t.Errorf("Expected merged notes, got %q", tx.Notes)
	}

	_, err = service.SetStatus(ctx, txId, models.StatusRejected, "")
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition out of terminal state, got %v", err)
	}
}

func TestSetStatus_UnknownId(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ok, err := service.SetStatus(context.Background(), "missing", models.StatusCompleted, "")
	if err != nil {
		t.Fatalf("Expected no error for unknown id, got %v", err)
	}
	if ok {
		t.Error("Expected false for unknown id")
	}
}

func TestListForUser_OrderLimitAndFilter(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	entries := []store.RecordParams{
		{Id: "d1", UserId: "user1", Type: models.TxDeposit, Amount: decimal.NewFromInt(100)},
		{Id: "w1", UserId: "user1", Type: models.TxWithdrawal, Amount: decimal.NewFromInt(10)},
		{Id: "d2", UserId: "user1", Type: models.TxDeposit, Amount: decimal.NewFromInt(200)},
		{Id: "x1", UserId: "user2", Type: models.TxDeposit, Amount: decimal.NewFromInt(1)},
	}
	for _, e := range entries {
		if _, err := service.Record(ctx, e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	all, err := service.ListForUser(ctx, "user1", 0, "")
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if len(all) != 3 || all[0].Id != "d2" || all[2].Id != "d1" {
		t.Errorf("Expected [d2 w1 d1], got %v", ids(all))
	}

	limited, _ := service.ListForUser(ctx, "user1", 1, "")
	if len(limited) != 1 || limited[0].Id != "d2" {
		t.Errorf("Expected [d2], got %v", ids(limited))
	}

	deposits, _ := service.ListForUser(ctx, "user1", 10, models.TxDeposit)
	if len(deposits) != 2 {
		t.Errorf("Expected 2 deposits, got %v", ids(deposits))
	}
}

func TestReconcileAll_FoldsCompletedOnly(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	completed := []store.RecordParams{
		{UserId: "user1", Type: models.TxDeposit, Amount: decimal.NewFromInt(1000)},
		{UserId: "user1", Type: models.TxFee, Amount: decimal.NewFromInt(100)},
		{UserId: "user1", Type: models.TxWithdrawal, Amount: decimal.NewFromInt(200)},
		{UserId: "user1", Type: models.TxReferral, Amount: decimal.NewFromInt(50)},
		{UserId: "user1", Type: models.TxAdjustment, Amount: decimal.NewFromInt(-25)},
		{UserId: "user2", Type: models.TxDeposit, Amount: decimal.NewFromInt(10)},
	}
	for _, e := range completed {
		if _, err := service.RecordCompleted(ctx, e); err != nil {
			t.Fatalf("RecordCompleted failed: %v", err)
		}
	}

	pendingId, _ := service.Record(ctx, store.RecordParams{UserId: "user1", Type: models.TxDeposit, Amount: decimal.NewFromInt(5000)})
	rejectedId, _ := service.Record(ctx, store.RecordParams{UserId: "user1", Type: models.TxWithdrawal, Amount: decimal.NewFromInt(700)})
	if _, err := service.SetStatus(ctx, rejectedId, models.StatusRejected, "insufficient"); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	_ = pendingId

	balances, err := service.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll failed: %v", err)
	}

	if want := decimal.NewFromInt(725); !balances["user1"].Equal(want) {
		t.Errorf("Expected user1 %s, got %s", want, balances["user1"])
	}
	if want := decimal.NewFromInt(10); !balances["user2"].Equal(want) {
		t.Errorf("Expected user2 %s, got %s", want, balances["user2"])
	}
}

func TestReconcileSnapshot(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	for _, userId := range []string{"user1", "user2"} {
		if _, _, err := service.CreateIfAbsent(ctx, userId, ""); err != nil {
			t.Fatalf("CreateIfAbsent failed: %v", err)
		}
	}
	if _, err := service.Apply(ctx, "user1", credit("900")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, err := service.RecordCompleted(ctx, store.RecordParams{UserId: "user1", Type: models.TxDeposit, Amount: decimal.NewFromInt(1000)}); err != nil {
		t.Fatalf("RecordCompleted failed: %v", err)
	}
	if _, err := service.RecordCompleted(ctx, store.RecordParams{UserId: "user1", Type: models.TxFee, Amount: decimal.NewFromInt(100)}); err != nil {
		t.Fatalf("RecordCompleted failed: %v", err)
	}

	balances, accounts, err := service.ReconcileSnapshot(ctx)
	if err != nil {
		t.Fatalf("ReconcileSnapshot failed: %v", err)
	}
	if !balances["user1"].Equal(decimal.NewFromInt(900)) {
		t.Errorf("Expected folded 900, got %s", balances["user1"])
	}
	if _, ok := balances["user2"]; ok {
		t.Error("Expected no folded balance for a user without entries")
	}
	if len(accounts) != 2 || accounts[0].UserId != "user1" || !accounts[0].Balance.Equal(decimal.NewFromInt(900)) {
		t.Errorf("Expected both accounts with user1 at 900, got %+v", accounts)
	}

	// the locks are released again
	if _, err := service.Apply(ctx, "user2", credit("1")); err != nil {
		t.Fatalf("Apply after snapshot failed: %v", err)
	}
}

func ids(txs []models.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.Id
	}
	return out
}
