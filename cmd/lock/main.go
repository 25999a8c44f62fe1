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

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	userFlag := flag.String("user", "", "User id (required)")
	amountFlag := flag.String("amount", "", "Amount to lock or unlock (required)")
	unlockFlag := flag.Bool("unlock", false, "Release locked funds instead of locking")
	flag.Parse()

	if *userFlag == "" || *amountFlag == "" {
		zap.Must(zap.NewProduction()).Fatal("Both flags are required: --user and --amount")
	}
	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil || !amount.IsPositive() {
		zap.Must(zap.NewProduction()).Fatal("Amount must be a positive number", zap.String("amount", *amountFlag))
	}

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

	before, err := services.Accounts.Locked(ctx, *userFlag)
	if err != nil {
		fmt.Printf("❌ %s\n", err)
		zap.L().Fatal("Failed to load account", zap.String("user_id", *userFlag), zap.Error(err))
	}

	action := "LOCKED"
	lock := services.Accounts.Lock
	if *unlockFlag {
		action = "UNLOCKED"
		lock = services.Accounts.Unlock
	}

	account, err := lock(ctx, *userFlag, amount)
	if err != nil {
		fmt.Printf("❌ %s\n", err)
		zap.L().Fatal("Lock update failed", zap.String("user_id", *userFlag), zap.Error(err))
	}

	common.PrintHeader("FUNDS "+action, common.DefaultWidth)
	fmt.Printf("User:      %s\n", account.UserId)
	fmt.Printf("Amount:    %s\n", common.FormatMoney(amount))
	fmt.Printf("Balance:   %s\n", common.FormatMoney(account.Balance))
	fmt.Printf("Locked:    %s -> %s\n", common.FormatMoney(before), common.FormatMoney(account.Locked))
	fmt.Printf("Available: %s\n", common.FormatMoney(account.Available()))
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}
