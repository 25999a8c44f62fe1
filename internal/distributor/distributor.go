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

package distributor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"invest-ledger-go/internal/feed"
	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/notify"
	"invest-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reasons a cycle ends without touching balances.
const (
	SkipNoTrades      = "no new trades"
	SkipBelowMaterial = "below materiality threshold"
	SkipNoBalances    = "no positive balances"
)

var errNoBalances = errors.New("no positive balances")

// Mirror receives each ADJUSTMENT entry once it is logged.
type Mirror interface {
	MirrorTransaction(ctx context.Context, tx models.Transaction) error
}

// Distributor folds closed trading P/L into account balances pro rata.
type Distributor struct {
	source      feed.Source
	accounts    store.AccountStore
	trades      store.TradeSet
	txLog       store.TransactionLog
	notifier    notify.Notifier
	mirror      Mirror
	materiality decimal.Decimal
	feedTimeout time.Duration
	now         func() time.Time

	// cycles never overlap
	mu sync.Mutex
}

// Config holds the distributor's tunables.
type Config struct {
	MaterialityThreshold decimal.Decimal
	FeedTimeout          time.Duration
	Now                  func() time.Time
	Mirror               Mirror
}

func New(
	source feed.Source,
	accounts store.AccountStore,
	trades store.TradeSet,
	txLog store.TransactionLog,
	notifier notify.Notifier,
	cfg Config,
) *Distributor {
	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Distributor{
		source:      source,
		accounts:    accounts,
		trades:      trades,
		txLog:       txLog,
		notifier:    notifier,
		mirror:      cfg.Mirror,
		materiality: cfg.MaterialityThreshold,
		feedTimeout: cfg.FeedTimeout,
		now:         cfg.Now,
	}
}

// RunCycle runs one distribution. A skipped cycle is a normal outcome and is
// reported through DistributionResult.Skipped with a nil error. Any error
// means nothing was persisted, except a failure to mark trades processed after
// the ledger write, which is reported and logged as such.
func (d *Distributor) RunCycle(ctx context.Context) (*models.DistributionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := &models.DistributionResult{CycleId: uuid.New().String()}
	logger := zap.L().With(zap.String("cycle_id", result.CycleId))

	fetchCtx, cancel := context.WithTimeout(ctx, d.feedTimeout)
	closed, err := d.source.FetchClosedTrades(fetchCtx)
	cancel()
	if err != nil {
		logger.Error("Profit feed unavailable, cycle aborted", zap.Error(err))
		return nil, fmt.Errorf("failed to fetch closed trades: %w", err)
	}

	pending, err := d.newTrades(ctx, closed)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		logger.Info("No new valid trades to process", zap.Int("closed", len(closed)))
		return d.skip(result, SkipNoTrades), nil
	}

	total := decimal.Zero
	for _, t := range pending {
		total = total.Add(t.Profit)
		result.TradeIds = append(result.TradeIds, t.TradeId)
	}
	total = total.Round(2)
	result.TradesProcessed = len(pending)
	result.TotalClosedPL = total

	if total.Abs().LessThan(d.materiality) {
		logger.Info("No significant realized P/L to apply",
			zap.String("total_closed_pl", total.String()),
			zap.String("threshold", d.materiality.String()))
		return d.skip(result, SkipBelowMaterial), nil
	}

	now := d.now().UTC()
	shares := make(map[string]decimal.Decimal)
	_, err = d.accounts.ApplyAll(ctx, func(accounts []models.Account) ([]models.Account, error) {
		computed, totalBalances, err := Shares(accounts, total)
		if err != nil {
			return nil, err
		}
		result.TotalBalances = totalBalances

		for i := range accounts {
			share, ok := computed[accounts[i].UserId]
			if !ok {
				continue
			}
			next, err := applyShare(accounts[i], share, now)
			if err != nil {
				return nil, err
			}
			accounts[i] = next
			shares[accounts[i].UserId] = share
		}
		return accounts, nil
	})
	if errors.Is(err, errNoBalances) {
		logger.Warn("No user balances to apply P/L to", zap.String("total_closed_pl", total.String()))
		return d.skip(result, SkipNoBalances), nil
	}
	if err != nil {
		logger.Error("Distribution aborted, no balances changed", zap.Error(err))
		return nil, fmt.Errorf("failed to apply distribution: %w", err)
	}

	// The ledger write has landed; only now may the trades be consumed.
	if err := d.trades.MarkProcessed(ctx, result.TradeIds); err != nil {
		logger.Error("Balances updated but trades not marked processed; manual review required",
			zap.Strings("trade_ids", result.TradeIds),
			zap.Error(err))
		return nil, fmt.Errorf("failed to mark trades processed after ledger write: %w", err)
	}

	result.Shares = shares
	result.AccountsCredited = len(shares)
	result.CompletedAt = now

	d.recordAdjustments(ctx, result)

	logger.Info("Distribution complete",
		zap.Int("trades", result.TradesProcessed),
		zap.String("total_closed_pl", total.String()),
		zap.String("total_balances", result.TotalBalances.String()),
		zap.Int("accounts", result.AccountsCredited))

	if err := d.notifier.Notify(ctx, Summary(result)); err != nil {
		logger.Warn("Failed to send distribution notification", zap.Error(err))
	}

	return result, nil
}

func (d *Distributor) skip(result *models.DistributionResult, reason string) *models.DistributionResult {
	result.Skipped = reason
	result.CompletedAt = d.now().UTC()
	return result
}

// newTrades drops non-trading rows, duplicates within the batch, and trades
// already consumed by an earlier cycle.
func (d *Distributor) newTrades(ctx context.Context, closed []models.ClosedTrade) ([]models.ClosedTrade, error) {
	seen := make(map[string]bool, len(closed))
	var candidates []models.ClosedTrade
	var ids []string
	for _, t := range closed {
		if !t.IsRealTrade || t.TradeId == "" || seen[t.TradeId] {
			continue
		}
		seen[t.TradeId] = true
		candidates = append(candidates, t)
		ids = append(ids, t.TradeId)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	processed, err := d.trades.ProcessedTrades(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed trades: %w", err)
	}

	var pending []models.ClosedTrade
	for _, t := range candidates {
		if processed[t.TradeId] {
			zap.L().Debug("Skipping trade", zap.String("trade_id", t.TradeId), zap.Error(store.ErrDuplicateTrade))
			continue
		}
		pending = append(pending, t)
	}
	return pending, nil
}

// recordAdjustments logs one COMPLETED ADJUSTMENT per credited account so the
// transaction log keeps folding to the ledger. Failures are logged only: the
// ledger and the processed set are already consistent.
func (d *Distributor) recordAdjustments(ctx context.Context, result *models.DistributionResult) {
	if d.txLog == nil {
		return
	}
	notes := fmt.Sprintf("profit distribution %s (%d trades)", result.CycleId, result.TradesProcessed)
	for userId, share := range result.Shares {
		if share.IsZero() {
			continue
		}
		txId, err := d.txLog.RecordCompleted(ctx, store.RecordParams{
			Id:     result.CycleId + ":" + userId,
			UserId: userId,
			Type:   models.TxAdjustment,
			Amount: share,
			Notes:  notes,
		})
		if err != nil {
			zap.L().Error("Failed to log distribution adjustment",
				zap.String("cycle_id", result.CycleId),
				zap.String("user_id", userId),
				zap.String("share", share.String()),
				zap.Error(err))
			continue
		}
		d.mirrorAdjustment(ctx, models.Transaction{
			Id:        txId,
			Timestamp: result.CompletedAt,
			UserId:    userId,
			Type:      models.TxAdjustment,
			Amount:    share,
			Status:    models.StatusCompleted,
			Notes:     notes,
		})
	}
}

func (d *Distributor) mirrorAdjustment(ctx context.Context, tx models.Transaction) {
	if d.mirror == nil {
		return
	}
	if err := d.mirror.MirrorTransaction(ctx, tx); err != nil {
		zap.L().Warn("Failed to mirror distribution adjustment",
			zap.String("tx_id", tx.Id),
			zap.Error(err))
	}
}

// Summary is the admin notification text for a completed cycle.
func Summary(result *models.DistributionResult) string {
	title, action := "✅ Profit Distribution Complete", "Distributed"
	if result.TotalClosedPL.IsNegative() {
		title, action = "⚠️ Loss Distribution Complete", "Deducted"
	}
	return fmt.Sprintf("%s\n\n• New Trades Processed: %d\n• Closed P/L: %s\n• Accounts: %d\n• Action: %s",
		title, result.TradesProcessed, result.TotalClosedPL.StringFixed(2), result.AccountsCredited, action)
}
