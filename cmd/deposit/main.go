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
	"errors"
	"flag"
	"fmt"

	"invest-ledger-go/internal/common"
	"invest-ledger-go/internal/config"
	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type depositRequest struct {
	userId  string
	amount  decimal.Decimal
	request bool
	approve string
	reject  string
	notes   string
}

func parseAndValidateFlags() (*depositRequest, error) {
	userFlag := flag.String("user", "", "User id to credit")
	amountFlag := flag.String("amount", "", "Gross deposit amount before the fee")
	requestFlag := flag.Bool("request", false, "Record a PENDING deposit request instead of crediting immediately")
	approveFlag := flag.String("approve", "", "Approve the PENDING deposit with this transaction id")
	rejectFlag := flag.String("reject", "", "Reject the PENDING deposit with this transaction id")
	notesFlag := flag.String("notes", "", "Notes or rejection reason")
	flag.Parse()

	req := &depositRequest{
		userId:  *userFlag,
		request: *requestFlag,
		approve: *approveFlag,
		reject:  *rejectFlag,
		notes:   *notesFlag,
	}

	if req.approve != "" && req.reject != "" {
		return nil, fmt.Errorf("--approve and --reject are mutually exclusive")
	}
	if req.approve != "" || req.reject != "" {
		return req, nil
	}

	if req.userId == "" || *amountFlag == "" {
		return nil, fmt.Errorf("--user and --amount are required")
	}
	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be greater than zero")
	}
	req.amount = amount
	return req, nil
}

func printResult(title string, result *models.OperationResult) {
	common.PrintHeader(title, common.DefaultWidth)
	fmt.Printf("User:        %s\n", result.UserId)
	fmt.Printf("Transaction: %s\n", result.TxId)
	fmt.Printf("Credited:    %s\n", common.FormatMoney(result.Amount))
	fmt.Printf("New Balance: %s\n", common.FormatMoney(result.NewBalance))
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "account or request not found"
	case errors.Is(err, store.ErrInvalidAmount):
		return err.Error()
	case errors.Is(err, store.ErrInvalidTransition):
		return "request was already settled"
	default:
		return err.Error()
	}
}

func main() {
	ctx := context.Background()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("Invalid flags", zap.Error(err))
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

	ctx = models.WithOperator(ctx, "cli")

	switch {
	case req.approve != "":
		result, err := services.Accounts.ApproveDeposit(ctx, req.approve, req.notes)
		if err != nil {
			fmt.Printf("❌ Approval failed: %s\n", failureReason(err))
			zap.L().Fatal("Deposit approval failed", zap.String("tx_id", req.approve), zap.Error(err))
		}
		printResult("DEPOSIT APPROVED", result)

	case req.reject != "":
		if err := services.Accounts.RejectDeposit(ctx, req.reject, req.notes); err != nil {
			fmt.Printf("❌ Rejection failed: %s\n", failureReason(err))
			zap.L().Fatal("Deposit rejection failed", zap.String("tx_id", req.reject), zap.Error(err))
		}
		fmt.Printf("✅ Deposit %s rejected\n", req.reject)

	case req.request:
		txId, err := services.Accounts.RequestDeposit(ctx, req.userId, req.amount, req.notes)
		if err != nil {
			fmt.Printf("❌ Request failed: %s\n", failureReason(err))
			zap.L().Fatal("Deposit request failed", zap.Error(err))
		}
		fmt.Printf("✅ Deposit request recorded: %s (%s pending approval)\n", txId, common.FormatMoney(req.amount))

	default:
		result, err := services.Accounts.Deposit(ctx, req.userId, req.amount)
		if err != nil {
			fmt.Printf("❌ Deposit failed: %s\n", failureReason(err))
			zap.L().Fatal("Deposit failed", zap.Error(err))
		}
		printResult("DEPOSIT COMPLETED", result)
	}
}
