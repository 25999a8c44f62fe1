package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Record appends a PENDING entry and returns its id. Prior rows are never
// rewritten by this call.
func (s *Service) Record(ctx context.Context, params store.RecordParams) (string, error) {
	return s.insertTransaction(ctx, params, models.StatusPending)
}

// RecordCompleted appends an entry that needs no approval step.
func (s *Service) RecordCompleted(ctx context.Context, params store.RecordParams) (string, error) {
	return s.insertTransaction(ctx, params, models.StatusCompleted)
}

func (s *Service) insertTransaction(ctx context.Context, params store.RecordParams, status models.TxStatus) (string, error) {
	if params.UserId == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}
	if params.Type == "" {
		return "", fmt.Errorf("transaction type cannot be empty")
	}

	amount := params.Amount
	if params.Type != models.TxAdjustment {
		// Direction lives in the type; only ADJUSTMENT keeps a sign.
		amount = amount.Abs()
	}

	txId := params.Id
	if txId == "" {
		txId = uuid.New().String()
	}

	s.txLogMu.Lock()
	defer s.txLogMu.Unlock()

	// Check for duplicate transaction id
	var existingTxId string
	err := s.db.QueryRowContext(ctx, queryCheckDuplicateTransaction, txId).Scan(&existingTxId)
	if err == nil {
		zap.L().Warn("Duplicate transaction id detected, skipping", zap.String("tx_id", txId))
		return "", fmt.Errorf("%w: tx_id %s already exists", store.ErrDuplicateTransaction, txId)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", persistenceError("check duplicate transaction", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, queryInsertTransaction,
		txId, now, params.UserId, string(params.Type), amount.String(), string(status),
		params.Address, params.RelatedUser, params.Notes, now)
	if err != nil {
		if isUniqueViolation(err, "transactions.tx_id") {
			return "", fmt.Errorf("%w: tx_id %s already exists", store.ErrDuplicateTransaction, txId)
		}
		return "", persistenceError("insert transaction", err)
	}

	zap.L().Info("Transaction recorded",
		zap.String("tx_id", txId),
		zap.String("user_id", params.UserId),
		zap.String("type", string(params.Type)),
		zap.String("amount", amount.String()),
		zap.String("status", string(status)))

	return txId, nil
}

// SetStatus moves a PENDING entry to a terminal status. An unknown id returns
// false with no error; a transition out of a terminal status is rejected.
func (s *Service) SetStatus(ctx context.Context, txId string, status models.TxStatus, notes string) (bool, error) {
	s.txLogMu.Lock()
	defer s.txLogMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, persistenceError("begin transaction", err)
	}
	defer tx.Rollback()

	current, err := getTransaction(ctx, tx, txId)
	if errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("Status update for unknown transaction", zap.String("tx_id", txId))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !current.Status.CanTransitionTo(status) {
		return false, fmt.Errorf("%w: %s -> %s for %s", store.ErrInvalidTransition, current.Status, status, txId)
	}

	merged := current.Notes
	if notes != "" {
		if merged != "" {
			merged += " | "
		}
		merged += notes
	}

	result, err := tx.ExecContext(ctx, queryUpdateTransactionStatus, string(status), merged, time.Now().UTC(), txId, string(current.Status))
	if err != nil {
		return false, persistenceError("update transaction status", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, persistenceError("check rows affected", err)
	}
	if rowsAffected == 0 {
		return false, fmt.Errorf("status update for %s failed - %w", txId, store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return false, persistenceError("commit status update", err)
	}

	zap.L().Info("Transaction status updated",
		zap.String("tx_id", txId),
		zap.String("from", string(current.Status)),
		zap.String("to", string(status)))

	return true, nil
}

// GetTransaction returns one transaction or store.ErrNotFound.
func (s *Service) GetTransaction(ctx context.Context, txId string) (*models.Transaction, error) {
	return getTransaction(ctx, s.db, txId)
}

// ListForUser returns a user's transactions, most recent first. A limit <= 0
// returns everything; an empty typeFilter matches every type.
func (s *Service) ListForUser(ctx context.Context, userId string, limit int, typeFilter models.TxType) ([]models.Transaction, error) {
	zap.L().Debug("Getting transaction history",
		zap.String("user_id", userId),
		zap.Int("limit", limit),
		zap.String("type", string(typeFilter)))

	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, queryListUserTransactions, userId, string(typeFilter), string(typeFilter), limit)
	if err != nil {
		return nil, persistenceError("list transactions", err)
	}
	defer closeRows(rows)

	var transactions []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, persistenceError("scan transaction", err)
		}
		transactions = append(transactions, *t)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, persistenceError("iterate transactions", err)
	}

	return transactions, nil
}

// ReconcileAll folds every COMPLETED entry into a per-user balance. PENDING
// and REJECTED entries never count.
func (s *Service) ReconcileAll(ctx context.Context) (map[string]decimal.Decimal, error) {
	return foldCompleted(ctx, s.db)
}

// ReconcileSnapshot folds the log and lists the accounts in one read
// transaction. Both store locks are held so no account or log write commits
// between the two reads.
func (s *Service) ReconcileSnapshot(ctx context.Context) (map[string]decimal.Decimal, []models.Account, error) {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()
	s.txLogMu.Lock()
	defer s.txLogMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, persistenceError("begin reconcile snapshot", err)
	}
	defer tx.Rollback()

	balances, err := foldCompleted(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	accounts, err := listAccounts(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	return balances, accounts, nil
}

func foldCompleted(ctx context.Context, q querier) (map[string]decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx, queryCompletedTransactions)
	if err != nil {
		return nil, persistenceError("query completed transactions", err)
	}
	defer closeRows(rows)

	balances := make(map[string]decimal.Decimal)
	for rows.Next() {
		var userId, txType, amountStr string
		if err := rows.Scan(&userId, &txType, &amountStr); err != nil {
			return nil, persistenceError("scan completed transaction", err)
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}

		t := models.Transaction{Type: models.TxType(txType), Amount: amount}
		balances[userId] = balances[userId].Add(t.SignedAmount())
	}

	if err := rows.Err(); err != nil {
		return nil, persistenceError("iterate completed transactions", err)
	}

	return balances, nil
}

func getTransaction(ctx context.Context, q querier, txId string) (*models.Transaction, error) {
	t, err := scanTransaction(q.QueryRowContext(ctx, queryGetTransaction, txId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, txId)
	}
	if err != nil {
		return nil, persistenceError("get transaction", err)
	}
	return t, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var txType, status, amountStr string

	err := row.Scan(&t.Id, &t.Timestamp, &t.UserId, &txType, &amountStr, &status,
		&t.Address, &t.RelatedUser, &t.Notes, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Type = models.TxType(txType)
	t.Status = models.TxStatus(status)
	t.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	return &t, nil
}
