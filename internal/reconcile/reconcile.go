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

package reconcile

import (
	"context"
	"fmt"
	"sort"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Threshold is the largest |actual - calculated| still treated as agreement.
var Threshold = decimal.RequireFromString("0.01")

// Reconciler compares ledger balances against balances folded from the
// transaction log. It only reads.
type Reconciler struct {
	accounts store.AccountStore
	txLog    store.TransactionLog
}

func New(accounts store.AccountStore, txLog store.TransactionLog) *Reconciler {
	return &Reconciler{accounts: accounts, txLog: txLog}
}

// FullReconciliation returns one entry per user seen in either the ledger or
// the log. A user with log entries but no account reports actual = 0.
//
// An operation caught between its ledger write and its log entry still shows
// as a transient difference; running the report again clears it.
func (r *Reconciler) FullReconciliation(ctx context.Context) (map[string]models.ReconciliationEntry, error) {
	calculated, accounts, err := r.read(ctx)
	if err != nil {
		return nil, err
	}

	actual := make(map[string]decimal.Decimal, len(accounts))
	for _, a := range accounts {
		actual[a.UserId] = a.Balance
	}

	entries := make(map[string]models.ReconciliationEntry, len(actual))
	for userId, calc := range calculated {
		bal, ok := actual[userId]
		entries[userId] = newEntry(userId, calc, bal, !ok)
	}
	for userId, bal := range actual {
		if _, seen := entries[userId]; seen {
			continue
		}
		entries[userId] = newEntry(userId, decimal.Zero, bal, false)
	}

	discrepancies := 0
	for _, e := range entries {
		if e.Discrepancy {
			discrepancies++
			zap.L().Warn("Balance discrepancy detected",
				zap.String("user_id", e.UserId),
				zap.String("calculated", e.Calculated.String()),
				zap.String("actual", e.Actual.String()),
				zap.String("difference", e.Difference.String()),
				zap.Bool("account_missing", e.AccountMissing))
		}
	}

	zap.L().Info("Reconciliation complete",
		zap.Int("users", len(entries)),
		zap.Int("discrepancies", discrepancies))

	return entries, nil
}

// read takes both sides from one snapshot when the store offers it.
func (r *Reconciler) read(ctx context.Context) (map[string]decimal.Decimal, []models.Account, error) {
	if src, ok := r.accounts.(store.ReconcileSource); ok {
		calculated, accounts, err := src.ReconcileSnapshot(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read reconcile snapshot: %w", err)
		}
		return calculated, accounts, nil
	}

	calculated, err := r.txLog.ReconcileAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fold transaction log: %w", err)
	}
	accounts, err := r.accounts.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return calculated, accounts, nil
}

// Report returns the reconciliation sorted for display: discrepancies first,
// then by user id.
func (r *Reconciler) Report(ctx context.Context) ([]models.ReconciliationEntry, error) {
	entries, err := r.FullReconciliation(ctx)
	if err != nil {
		return nil, err
	}

	report := make([]models.ReconciliationEntry, 0, len(entries))
	for _, e := range entries {
		report = append(report, e)
	}
	sort.Slice(report, func(i, j int) bool {
		if report[i].Discrepancy != report[j].Discrepancy {
			return report[i].Discrepancy
		}
		return report[i].UserId < report[j].UserId
	})
	return report, nil
}

func newEntry(userId string, calculated, actual decimal.Decimal, missing bool) models.ReconciliationEntry {
	diff := actual.Sub(calculated)
	return models.ReconciliationEntry{
		UserId:         userId,
		Calculated:     calculated,
		Actual:         actual,
		Difference:     diff,
		Discrepancy:    diff.Abs().GreaterThan(Threshold),
		AccountMissing: missing,
	}
}
