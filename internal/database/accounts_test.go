package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func credit(amount string) store.AccountMutation {
	return func(a models.Account) (models.Account, error) {
		a.Balance = a.Balance.Add(decimal.RequireFromString(amount))
		return a, nil
	}
}

func TestReferralId(t *testing.T) {
	at := time.Date(2024, time.March, 7, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		userId string
		want   string
	}{
		{"123456789", "REF4567890307"},
		{"42", "REF420307"},
		{"abcdef", "REFabcdef0307"},
	}
	for _, tt := range tests {
		if got := ReferralId(tt.userId, at); got != tt.want {
			t.Errorf("ReferralId(%q) = %q, want %q", tt.userId, got, tt.want)
		}
	}
}

func TestCreateIfAbsent_Idempotent(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	first, created, err := service.CreateIfAbsent(ctx, "user1", "")
	if err != nil {
		t.Fatalf("CreateIfAbsent failed: %v", err)
	}
	if !created {
		t.Fatal("Expected account to be created")
	}
	if !first.Balance.IsZero() || first.Version != 1 {
		t.Errorf("Expected zero balance at version 1, got %s at version %d", first.Balance, first.Version)
	}

	second, created, err := service.CreateIfAbsent(ctx, "user1", "")
	if err != nil {
		t.Fatalf("Second CreateIfAbsent failed: %v", err)
	}
	if created {
		t.Error("Expected duplicate create to be a no-op")
	}
	if second.ReferralId != first.ReferralId {
		t.Errorf("Expected referral id %s, got %s", first.ReferralId, second.ReferralId)
	}

	accounts, err := service.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("Expected 1 account, got %d", len(accounts))
	}
}

func TestCreateIfAbsent_IncrementsReferrer(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	referrer, _, err := service.CreateIfAbsent(ctx, "referrer", "")
	if err != nil {
		t.Fatalf("Failed to create referrer: %v", err)
	}

	// by referral code
	a, _, err := service.CreateIfAbsent(ctx, "invitee1", referrer.ReferralId)
	if err != nil {
		t.Fatalf("Failed to create invitee1: %v", err)
	}
	if a.ReferrerId != "referrer" {
		t.Errorf("Expected referrer_id referrer, got %q", a.ReferrerId)
	}

	// by user id
	if _, _, err := service.CreateIfAbsent(ctx, "invitee2", "referrer"); err != nil {
		t.Fatalf("Failed to create invitee2: %v", err)
	}

	// repeat create must not count twice
	if _, _, err := service.CreateIfAbsent(ctx, "invitee2", "referrer"); err != nil {
		t.Fatalf("Repeat create failed: %v", err)
	}

	got, err := service.Get(ctx, "referrer")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ReferralCount != 2 {
		t.Errorf("Expected referral_count 2, got %d", got.ReferralCount)
	}
}

func TestCreateIfAbsent_IgnoresUnknownAndSelfReferrer(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	a, _, err := service.CreateIfAbsent(ctx, "user1", "REFnobody0101")
	if err != nil {
		t.Fatalf("CreateIfAbsent failed: %v", err)
	}
	if a.HasReferrer() {
		t.Errorf("Expected no referrer, got %q", a.ReferrerId)
	}

	b, _, err := service.CreateIfAbsent(ctx, "user2", "user2")
	if err != nil {
		t.Fatalf("CreateIfAbsent failed: %v", err)
	}
	if b.HasReferrer() {
		t.Errorf("Expected self-referral to be ignored, got %q", b.ReferrerId)
	}
}

func TestCreateIfAbsent_ReferralIdCollision(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	a, _, err := service.CreateIfAbsent(ctx, "aa123456", "")
	if err != nil {
		t.Fatalf("CreateIfAbsent failed: %v", err)
	}
	b, _, err := service.CreateIfAbsent(ctx, "bb123456", "")
	if err != nil {
		t.Fatalf("CreateIfAbsent with colliding suffix failed: %v", err)
	}
	if a.ReferralId == b.ReferralId {
		t.Errorf("Expected distinct referral ids, both are %s", a.ReferralId)
	}
}

func TestGet_NotFound(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.Get(context.Background(), "ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestApply_UpdatesWholeRecord(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := service.CreateIfAbsent(ctx, "user1", ""); err != nil {
		t.Fatalf("CreateIfAbsent failed: %v", err)
	}

	now := time.Now().UTC()
	updated, err := service.Apply(ctx, "user1", func(a models.Account) (models.Account, error) {
		a.Balance = decimal.NewFromInt(900)
		a.TotalDeposits = decimal.NewFromInt(900)
		a.FirstDeposit = true
		a.FirstDepositDate = now
		a.FirstDepositAmount = decimal.NewFromInt(900)
		a.UserId = "someone-else"
		return a, nil
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if updated.UserId != "user1" {
		t.Errorf("Expected user id to be preserved, got %s", updated.UserId)
	}
	if updated.Version != 2 {
		t.Errorf("Expected version 2, got %d", updated.Version)
	}

	got, err := service.Get(ctx, "user1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(900)) {
		t.Errorf("Expected balance 900, got %s", got.Balance)
	}
	if !got.FirstDeposit || got.FirstDepositDate.IsZero() {
		t.Error("Expected first deposit fields to be stamped")
	}
	if !got.LastProfitDate.IsZero() {
		t.Errorf("Expected empty last_profit_date, got %v", got.LastProfitDate)
	}
}

func TestApply_MutationErrorLeavesStateUnchanged(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := service.CreateIfAbsent(ctx, "user1", ""); err != nil {
		t.Fatalf("CreateIfAbsent failed: %v", err)
	}
	if _, err := service.Apply(ctx, "user1", credit("100")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	boom := errors.New("boom")
	_, err := service.Apply(ctx, "user1", func(a models.Account) (models.Account, error) {
		a.Balance = decimal.Zero
		return a, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected mutation error, got %v", err)
	}

	got, _ := service.Get(ctx, "user1")
	if !got.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance 100, got %s", got.Balance)
	}
}

func TestApply_RejectsInvariantViolations(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := service.CreateIfAbsent(ctx, "user1", ""); err != nil {
		t.Fatalf("CreateIfAbsent failed: %v", err)
	}
	if _, err := service.Apply(ctx, "user1", func(a models.Account) (models.Account, error) {
		a.Balance = decimal.NewFromInt(100)
		a.TotalDeposits = decimal.NewFromInt(100)
		a.ReferralEarnings = decimal.NewFromInt(10)
		return a, nil
	}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	tests := []struct {
		name string
		fn   store.AccountMutation
		want error
	}{
		{"negative balance", credit("-150"), store.ErrInsufficientBalance},
		{"locked above balance", func(a models.Account) (models.Account, error) {
			a.Locked = decimal.NewFromInt(101)
			return a, nil
		}, store.ErrInsufficientBalance},
		{"deposits decrease", func(a models.Account) (models.Account, error) {
			a.TotalDeposits = decimal.NewFromInt(50)
			return a, nil
		}, store.ErrInvalidAmount},
		{"referral earnings decrease", func(a models.Account) (models.Account, error) {
			a.ReferralEarnings = decimal.NewFromInt(5)
			return a, nil
		}, store.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Apply(ctx, "user1", tt.fn)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	got, _ := service.Get(ctx, "user1")
	if !got.Balance.Equal(decimal.NewFromInt(100)) || got.Version != 2 {
		t.Errorf("Expected untouched account at version 2, got balance %s version %d", got.Balance, got.Version)
	}
}

func TestApply_UnknownUser(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.Apply(context.Background(), "ghost", credit("1"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestApply_ConcurrentNoLostUpdates(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := service.CreateIfAbsent(ctx, "user1", ""); err != nil {
		t.Fatalf("CreateIfAbsent failed: %v", err)
	}

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := service.Apply(ctx, "user1", credit(fmt.Sprintf("%d.01", n))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("Concurrent Apply failed: %v", err)
	}

	// sum of n + 0.01 for n = 1..50
	want := decimal.NewFromInt(workers * (workers + 1) / 2).Add(decimal.RequireFromString("0.50"))
	got, _ := service.Get(ctx, "user1")
	if !got.Balance.Equal(want) {
		t.Errorf("Expected balance %s, got %s", want, got.Balance)
	}
	if got.Version != workers+1 {
		t.Errorf("Expected version %d, got %d", workers+1, got.Version)
	}
}

func TestApplyAll_SingleWrite(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, _, err := service.CreateIfAbsent(ctx, id, ""); err != nil {
			t.Fatalf("CreateIfAbsent failed: %v", err)
		}
	}
	if _, err := service.Apply(ctx, "a", credit("10")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	result, err := service.ApplyAll(ctx, func(accounts []models.Account) ([]models.Account, error) {
		for i := range accounts {
			if accounts[i].Balance.IsPositive() {
				accounts[i].Balance = accounts[i].Balance.Add(decimal.NewFromInt(5))
			}
		}
		return accounts, nil
	})
	if err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 accounts, got %d", len(result))
	}

	a, _ := service.Get(ctx, "a")
	b, _ := service.Get(ctx, "b")
	if !a.Balance.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Expected a balance 15, got %s", a.Balance)
	}
	if b.Version != 1 {
		t.Errorf("Expected untouched account b at version 1, got %d", b.Version)
	}
}

func TestApplyAll_AllOrNothing(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, _, err := service.CreateIfAbsent(ctx, id, ""); err != nil {
			t.Fatalf("CreateIfAbsent failed: %v", err)
		}
		if _, err := service.Apply(ctx, id, credit("10")); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}

	_, err := service.ApplyAll(ctx, func(accounts []models.Account) ([]models.Account, error) {
		accounts[0].Balance = decimal.NewFromInt(20)
		accounts[1].Balance = decimal.NewFromInt(-1)
		return accounts, nil
	})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}

	a, _ := service.Get(ctx, "a")
	if !a.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected a to be rolled back to 10, got %s", a.Balance)
	}
}
