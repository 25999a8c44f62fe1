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
	"os"

	"invest-ledger-go/internal/common"
	"invest-ledger-go/internal/config"
	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/reconcile"

	"go.uber.org/zap"
)

func printEntry(e models.ReconciliationEntry) {
	status := "OK"
	switch {
	case e.AccountMissing:
		status = "MISSING ACCOUNT"
	case e.Discrepancy:
		status = "DISCREPANCY"
	}
	fmt.Printf("%-20s %15s %15s %12s  %s\n",
		e.UserId,
		common.FormatMoney(e.Calculated),
		common.FormatMoney(e.Actual),
		common.FormatMoney(e.Difference),
		status)
}

// compareMirror checks each ledger balance against the Formance mirror.
func compareMirror(ctx context.Context, services *common.Services, entries []models.ReconciliationEntry) int {
	drift := 0

	common.PrintHeader("FORMANCE MIRROR", common.DefaultWidth)
	for _, e := range entries {
		if e.AccountMissing {
			continue
		}
		mirrored, err := services.Mirror.Balance(ctx, e.UserId)
		if err != nil {
			zap.L().Error("Failed to read mirrored balance", zap.String("user_id", e.UserId), zap.Error(err))
			drift++
			continue
		}
		if mirrored.Sub(e.Actual).Abs().GreaterThan(reconcile.Threshold) {
			drift++
			fmt.Printf("%-20s ledger %s mirror %s\n", e.UserId, common.FormatMoney(e.Actual), common.FormatMoney(mirrored))
		}
	}
	if drift == 0 {
		fmt.Println("Mirror agrees with the ledger")
	}
	return drift
}

func main() {
	mirrorFlag := flag.Bool("mirror", false, "Also compare ledger balances with the Formance mirror")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	entries, err := services.Reconciler.Report(ctx)
	if err != nil {
		zap.L().Fatal("Reconciliation failed", zap.Error(err))
	}

	common.PrintHeader("RECONCILIATION REPORT", common.WideWidth)
	fmt.Printf("%-20s %15s %15s %12s  %s\n", "USER", "FROM LOG", "LEDGER", "DIFF", "STATUS")
	common.PrintSeparator("-", common.WideWidth)

	discrepancies := 0
	for _, e := range entries {
		if e.Discrepancy {
			discrepancies++
		}
		printEntry(e)
	}

	processed, err := services.DbService.CountProcessedTrades(ctx)
	if err != nil {
		zap.L().Warn("Failed to count processed trades", zap.Error(err))
	}

	summary := fmt.Sprintf("SUMMARY: %d accounts checked, %d discrepancies, %d trades distributed",
		len(entries), discrepancies, processed)
	common.PrintFooter(summary, common.WideWidth)

	if *mirrorFlag {
		if services.Mirror == nil {
			zap.L().Fatal("--mirror requires FORMANCE_STACK_URL, FORMANCE_CLIENT_ID and FORMANCE_CLIENT_SECRET")
		}
		discrepancies += compareMirror(ctx, services, entries)
	}

	zap.L().Info("Reconciliation completed",
		zap.Int("accounts", len(entries)),
		zap.Int("discrepancies", discrepancies))

	if discrepancies > 0 {
		loggerCleanup()
		os.Exit(1)
	}
}
