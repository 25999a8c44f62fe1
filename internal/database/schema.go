package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"invest-ledger-go/internal/store"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Service) initSchema() error {
	schema := `
	-- Ledger: one row per user, rewritten whole on every mutation
	CREATE TABLE IF NOT EXISTS accounts (
		user_id TEXT PRIMARY KEY,
		balance TEXT NOT NULL DEFAULT '0',
		locked TEXT NOT NULL DEFAULT '0',
		total_deposits TEXT NOT NULL DEFAULT '0',
		total_withdrawals TEXT NOT NULL DEFAULT '0',
		total_interest TEXT NOT NULL DEFAULT '0',
		referral_id TEXT NOT NULL UNIQUE,
		referrer_id TEXT,
		referral_count INTEGER NOT NULL DEFAULT 0,
		referral_earnings TEXT NOT NULL DEFAULT '0',
		first_deposit BOOLEAN NOT NULL DEFAULT 0,
		first_deposit_date TIMESTAMP,
		first_deposit_amount TEXT NOT NULL DEFAULT '0',
		last_profit_date TIMESTAMP,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_referrer_id ON accounts(referrer_id);

	-- Transaction log: append-mostly, status updated once
	CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		tx_id TEXT NOT NULL UNIQUE,
		timestamp TIMESTAMP NOT NULL,
		user_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		address TEXT NOT NULL DEFAULT '',
		related_user TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);

	-- Trades already folded into balances by the profit distributor
	CREATE TABLE IF NOT EXISTS processed_trades (
		trade_id TEXT PRIMARY KEY,
		processed_at TIMESTAMP NOT NULL
	);

	-- Withdrawal rate limiter state
	CREATE TABLE IF NOT EXISTS withdrawal_cooldowns (
		user_id TEXT PRIMARY KEY,
		last_withdrawal_date TEXT NOT NULL,
		withdrawals_this_month INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// persistenceError classifies a driver failure. Callers above the database
// package only ever see store.ErrPersistence for I/O problems.
func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", store.ErrPersistence, op, err)
}

func isUniqueViolation(err error, column string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	if sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique && sqliteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return false
	}
	return column == "" || strings.Contains(sqliteErr.Error(), column)
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}
