/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"invest-ledger-go/internal/limiter"
	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Mirror receives every COMPLETED transaction for an external ledger copy.
type Mirror interface {
	MirrorTransaction(ctx context.Context, tx models.Transaction) error
}

// AccountService implements the account operations on top of the stores.
// All balance changes go through AccountStore.Apply.
type AccountService struct {
	accounts store.AccountStore
	txLog    store.TransactionLog
	limiter  *limiter.Limiter
	mirror   Mirror
	cfg      models.OperationsConfig
	now      func() time.Time

	// serializes approve/reject so one PENDING request is settled once
	approvalMu sync.Mutex
	// requests whose ledger write landed but whose status update failed
	unsettled map[string]*ledgerWrite
}

// ledgerWrite is the ledger side of an approval, kept so a retry only
// completes the request instead of applying the change twice.
type ledgerWrite struct {
	account *models.Account
	deposit *depositCredit
}

type Option func(*AccountService)

func WithMirror(m Mirror) Option {
	return func(s *AccountService) {
		s.mirror = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *AccountService) {
		s.now = now
	}
}

func NewAccountService(
	accounts store.AccountStore,
	txLog store.TransactionLog,
	lim *limiter.Limiter,
	cfg models.OperationsConfig,
	opts ...Option,
) *AccountService {
	s := &AccountService{
		accounts:  accounts,
		txLog:     txLog,
		limiter:   lim,
		cfg:       cfg,
		now:       time.Now,
		unsettled: make(map[string]*ledgerWrite),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AccountService) HealthCheck(ctx context.Context) error {
	_, err := s.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Register creates the account on first contact. A repeated call is a no-op.
func (s *AccountService) Register(ctx context.Context, userId, referrer string) (*models.Account, bool, error) {
	if userId == "" {
		return nil, false, fmt.Errorf("user_id is required")
	}

	account, created, err := s.accounts.CreateIfAbsent(ctx, userId, referrer)
	if err != nil {
		zap.L().Error("Failed to register account", zap.String("user_id", userId), zap.Error(err))
		return nil, false, err
	}
	return account, created, nil
}

// Account returns the ledger record for userId.
func (s *AccountService) Account(ctx context.Context, userId string) (*models.Account, error) {
	if userId == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	return s.accounts.Get(ctx, userId)
}

// recordCompleted logs an entry that needs no approval and mirrors it.
func (s *AccountService) recordCompleted(ctx context.Context, params store.RecordParams) (string, error) {
	txId, err := s.txLog.RecordCompleted(ctx, params)
	if err != nil {
		zap.L().Error("Ledger updated but transaction log write failed",
			zap.String("user_id", params.UserId),
			zap.String("type", string(params.Type)),
			zap.String("amount", params.Amount.String()),
			zap.Error(err))
		return "", fmt.Errorf("ledger updated but %s not logged: %w", params.Type, err)
	}
	s.mirrorTx(ctx, txId)
	return txId, nil
}

// settle flips a PENDING request to a terminal status and mirrors it when it
// completes.
func (s *AccountService) settle(ctx context.Context, txId string, status models.TxStatus, notes string) error {
	if operator := models.GetOperator(ctx); operator != "" {
		notes = strings.TrimSpace(notes + " (by " + operator + ")")
	}
	ok, err := s.txLog.SetStatus(ctx, txId, status, notes)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: transaction %s", store.ErrNotFound, txId)
	}
	if status == models.StatusCompleted {
		s.mirrorTx(ctx, txId)
	}
	return nil
}

// pendingRequest loads a request and checks it can still be settled.
func (s *AccountService) pendingRequest(ctx context.Context, txId string, txType models.TxType) (*models.Transaction, error) {
	tx, err := s.txLog.GetTransaction(ctx, txId)
	if err != nil {
		return nil, err
	}
	if tx.Type != txType {
		return nil, fmt.Errorf("%w: transaction %s is a %s, not a %s", store.ErrInvalidTransition, txId, tx.Type, txType)
	}
	if tx.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: transaction %s is already %s", store.ErrInvalidTransition, txId, tx.Status)
	}
	return tx, nil
}

// markUnsettled remembers a ledger write whose request could not be
// completed. The ledger now runs ahead of the log for this user until the
// request is approved again.
func (s *AccountService) markUnsettled(txId string, w *ledgerWrite) {
	s.unsettled[txId] = w
}

// rejectUnsettled refuses to reject a request whose ledger change already
// landed.
func (s *AccountService) rejectUnsettled(txId string) error {
	if _, ok := s.unsettled[txId]; ok {
		return fmt.Errorf("%w: ledger already updated for %s, approve it again to complete", store.ErrInvalidTransition, txId)
	}
	return nil
}

// mirrorTx forwards a completed entry; the mirror never fails the operation.
func (s *AccountService) mirrorTx(ctx context.Context, txId string) {
	if s.mirror == nil {
		return
	}
	tx, err := s.txLog.GetTransaction(ctx, txId)
	if err != nil {
		zap.L().Warn("Unable to load transaction for mirroring", zap.String("tx_id", txId), zap.Error(err))
		return
	}
	if err := s.mirror.MirrorTransaction(ctx, *tx); err != nil {
		zap.L().Warn("Failed to mirror transaction",
			zap.String("tx_id", txId),
			zap.String("type", string(tx.Type)),
			zap.Error(err))
	}
}

func newResult(account *models.Account, txId string, amount decimal.Decimal) *models.OperationResult {
	return &models.OperationResult{
		Success:    true,
		UserId:     account.UserId,
		TxId:       txId,
		Amount:     amount,
		NewBalance: account.Balance,
	}
}
