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
	"regexp"

	"invest-ledger-go/internal/common"
	"invest-ledger-go/internal/config"

	"go.uber.org/zap"
)

// Telegram user ids are numeric.
var userIdRegex = regexp.MustCompile(`^[0-9]{3,20}$`)

func validateUserId(userId string) error {
	if userId == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if !userIdRegex.MatchString(userId) {
		return fmt.Errorf("invalid user id format: %s", userId)
	}
	return nil
}

func main() {
	ctx := context.Background()

	// Parse command line flags
	userFlag := flag.String("user", "", "Telegram user id (required)")
	referrerFlag := flag.String("referrer", "", "Referral code or user id of the referrer (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	if err := validateUserId(*userFlag); err != nil {
		zap.L().Fatal("Invalid user id", zap.Error(err))
	}

	zap.L().Info("Starting account creation",
		zap.String("user_id", *userFlag),
		zap.String("referrer", *referrerFlag))

	zap.L().Info("Initializing services")
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	account, created, err := services.Accounts.Register(ctx, *userFlag, *referrerFlag)
	if err != nil {
		zap.L().Fatal("Failed to create account", zap.Error(err))
	}

	title := "ACCOUNT CREATED"
	if !created {
		title = "ACCOUNT ALREADY EXISTS"
	}

	common.PrintHeader(title, common.DefaultWidth)
	fmt.Printf("User ID:     %s\n", account.UserId)
	fmt.Printf("Referral ID: %s\n", account.ReferralId)
	if account.HasReferrer() {
		fmt.Printf("Referrer:    %s\n", account.ReferrerId)
	}
	fmt.Printf("Balance:     %s\n", common.FormatMoney(account.Balance))
	if !created {
		info, err := services.Accounts.ReferralInfo(ctx, account.UserId)
		if err != nil {
			zap.L().Warn("Failed to load referral info", zap.String("user_id", account.UserId), zap.Error(err))
		} else {
			fmt.Printf("Referrals:   %d (earned %s)\n", info.Count, common.FormatMoney(info.Earnings))
		}
	}
	fmt.Printf("Created:     %s\n", common.FormatDate(account.CreatedAt))
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("Account ready",
		zap.String("user_id", account.UserId),
		zap.Bool("created", created))
}
