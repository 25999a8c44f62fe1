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

package main

import (
	"context"
	"flag"
	"fmt"

	"invest-ledger-go/internal/common"
	"invest-ledger-go/internal/config"
	"invest-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceStats struct {
	totalAccounts   int
	fundedAccounts  int
	totalBalance    decimal.Decimal
	totalLocked     decimal.Decimal
	totalInterest   decimal.Decimal
	pendingRequests int
}

func formatTransactionId(txId string) string {
	if len(txId) > 8 {
		return txId[:8] + "..."
	}
	return txId
}

func printAccountHeader(account models.Account, withdrawable decimal.Decimal) {
	fmt.Printf("\n┌─ Account: %s (%s)\n", account.UserId, account.ReferralId)
	fmt.Printf("│  Balance:      %s (locked %s, withdrawable %s)\n",
		common.FormatMoney(account.Balance),
		common.FormatMoney(account.Locked),
		common.FormatMoney(withdrawable))
	fmt.Printf("│  Deposits:     %s  Withdrawals: %s  Interest: %s\n",
		common.FormatMoney(account.TotalDeposits),
		common.FormatMoney(account.TotalWithdrawals),
		common.FormatMoney(account.TotalInterest))
	fmt.Printf("│  Referrals:    %d (earned %s)  Last profit: %s\n",
		account.ReferralCount,
		common.FormatMoney(account.ReferralEarnings),
		common.FormatDate(account.LastProfitDate))
}

func printTransaction(tx models.Transaction, isLast bool) {
	fmt.Printf("%s %-10s %12s %-9s %s (%s)\n",
		common.BoxPrefix(isLast),
		tx.Type,
		common.FormatMoney(tx.SignedAmount()),
		tx.Status,
		common.FormatDate(tx.Timestamp),
		formatTransactionId(tx.Id))
}

func processAccount(ctx context.Context, services *common.Services, account models.Account, history int, stats *balanceStats) error {
	withdrawable, err := services.Accounts.Withdrawable(ctx, account.UserId)
	if err != nil {
		return fmt.Errorf("failed to compute withdrawable: %w", err)
	}
	printAccountHeader(account, withdrawable)

	txs, err := services.Accounts.History(ctx, account.UserId, history, "")
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}
	for i, tx := range txs {
		if tx.Status == models.StatusPending {
			stats.pendingRequests++
		}
		printTransaction(tx, i == len(txs)-1)
	}
	return nil
}

func main() {
	ctx := context.Background()

	// Parse command line flags
	userFlag := flag.String("user", "", "Filter by specific user id (optional)")
	historyFlag := flag.Int("history", 5, "Number of recent transactions to show per account")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("Failed to load config", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	logger.Info("Starting balance query")

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	accounts, err := common.LoadAccounts(ctx, services.DbService, *userFlag, logger)
	if err != nil {
		logger.Fatal("Failed to load accounts", zap.Error(err))
	}

	common.PrintHeader("ACCOUNT BALANCE REPORT", common.DefaultWidth)

	stats := balanceStats{}
	for _, account := range accounts {
		stats.totalAccounts++
		if account.Balance.IsPositive() {
			stats.fundedAccounts++
		}
		stats.totalBalance = stats.totalBalance.Add(account.Balance)
		stats.totalLocked = stats.totalLocked.Add(account.Locked)
		stats.totalInterest = stats.totalInterest.Add(account.TotalInterest)

		if err := processAccount(ctx, services, account, *historyFlag, &stats); err != nil {
			logger.Error("Failed to process account",
				zap.String("user_id", account.UserId),
				zap.Error(err))
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d accounts (%d funded), total %s, locked %s, interest %s, %d pending in view",
		stats.totalAccounts, stats.fundedAccounts,
		common.FormatMoney(stats.totalBalance),
		common.FormatMoney(stats.totalLocked),
		common.FormatMoney(stats.totalInterest),
		stats.pendingRequests)
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("accounts", stats.totalAccounts),
		zap.Int("funded", stats.fundedAccounts),
		zap.String("total_balance", stats.totalBalance.String()))
}
