package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"invest-ledger-go/internal/database"
	"invest-ledger-go/internal/limiter"
	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/reconcile"
	"invest-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testOperationsConfig() models.OperationsConfig {
	return models.OperationsConfig{
		FeeRate:                 dec("0.10"),
		ReferralBonusRate:       dec("0.10"),
		MinDeposit:              dec("100"),
		MinWithdrawal:           dec("50"),
		PrincipalLock:           false,
		CooldownDays:            30,
		MaxWithdrawalsPerPeriod: 1,
		MaterialityThreshold:    dec("1.00"),
	}
}

type recordingMirror struct {
	mu  sync.Mutex
	txs []models.Transaction
	err error
}

func (m *recordingMirror) MirrorTransaction(_ context.Context, tx models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	return m.err
}

func setupTestService(t *testing.T, cfg models.OperationsConfig, opts ...Option) (*AccountService, *database.Service) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	dbService, err := database.NewServiceFromDB(db)
	if err != nil {
		t.Fatalf("Failed to initialize database service: %v", err)
	}
	t.Cleanup(func() { dbService.Close() })

	lim := limiter.New(dbService, cfg.CooldownDays, cfg.MaxWithdrawalsPerPeriod)
	return NewAccountService(dbService, dbService, lim, cfg, opts...), dbService
}

// flakyLog fails the next SetStatus calls after the ledger write landed.
type flakyLog struct {
	*database.Service
	failures int
}

func (l *flakyLog) SetStatus(ctx context.Context, txId string, status models.TxStatus, notes string) (bool, error) {
	if l.failures > 0 {
		l.failures--
		return false, fmt.Errorf("%w: disk I/O error", store.ErrPersistence)
	}
	return l.Service.SetStatus(ctx, txId, status, notes)
}

// withFlakyLog rebuilds the service over the same database with a log whose
// status updates can be made to fail.
func withFlakyLog(db *database.Service, cfg models.OperationsConfig) (*AccountService, *flakyLog) {
	log := &flakyLog{Service: db}
	lim := limiter.New(db, cfg.CooldownDays, cfg.MaxWithdrawalsPerPeriod)
	return NewAccountService(db, log, lim, cfg), log
}

func register(t *testing.T, s *AccountService, userId, referrer string) *models.Account {
	account, _, err := s.Register(context.Background(), userId, referrer)
	if err != nil {
		t.Fatalf("Register %s failed: %v", userId, err)
	}
	return account
}

func assertReconciled(t *testing.T, db *database.Service) {
	t.Helper()
	entries, err := reconcile.New(db, db).FullReconciliation(context.Background())
	if err != nil {
		t.Fatalf("FullReconciliation failed: %v", err)
	}
	for userId, e := range entries {
		if e.Discrepancy {
			t.Errorf("Log and ledger disagree for %s: calculated %s, actual %s", userId, e.Calculated, e.Actual)
		}
	}
}

func TestRegister_Idempotent(t *testing.T) {
	s, _ := setupTestService(t, testOperationsConfig())
	ctx := context.Background()

	_, created, err := s.Register(ctx, "user1", "")
	if err != nil || !created {
		t.Fatalf("Expected account to be created, got created=%v err=%v", created, err)
	}
	_, created, err = s.Register(ctx, "user1", "")
	if err != nil || created {
		t.Errorf("Expected second register to be a no-op, got created=%v err=%v", created, err)
	}

	if err := s.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestMirror_ReceivesCompletedEntriesOnly(t *testing.T) {
	mirror := &recordingMirror{err: errors.New("mirror down")}
	s, _ := setupTestService(t, testOperationsConfig(), WithMirror(mirror))
	ctx := context.Background()
	register(t, s, "user1", "")

	if _, err := s.Deposit(ctx, "user1", dec("1000")); err != nil {
		t.Fatalf("Deposit must not fail when the mirror does: %v", err)
	}
	if _, err := s.RequestDeposit(ctx, "user1", dec("200"), ""); err != nil {
		t.Fatalf("RequestDeposit failed: %v", err)
	}

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	if len(mirror.txs) != 2 {
		t.Fatalf("Expected deposit and fee to be mirrored, got %d entries", len(mirror.txs))
	}
	for _, tx := range mirror.txs {
		if tx.Status != models.StatusCompleted {
			t.Errorf("Mirrored a %s entry", tx.Status)
		}
	}
}
