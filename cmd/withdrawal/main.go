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

type withdrawalRequest struct {
	userId      string
	amount      decimal.Decimal
	destination string
	direct      bool
	approve     string
	reject      string
	notes       string
}

func parseAndValidateFlags() (*withdrawalRequest, error) {
	userFlag := flag.String("user", "", "User id")
	amountFlag := flag.String("amount", "", "Amount to withdraw")
	destinationFlag := flag.String("destination", "", "Destination wallet address (required for requests)")
	directFlag := flag.Bool("direct", false, "Debit immediately without a PENDING request")
	approveFlag := flag.String("approve", "", "Approve the PENDING withdrawal with this transaction id")
	rejectFlag := flag.String("reject", "", "Reject the PENDING withdrawal with this transaction id")
	notesFlag := flag.String("notes", "", "Notes or rejection reason")
	flag.Parse()

	req := &withdrawalRequest{
		userId:      *userFlag,
		destination: *destinationFlag,
		direct:      *directFlag,
		approve:     *approveFlag,
		reject:      *rejectFlag,
		notes:       *notesFlag,
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
	if !req.direct && req.destination == "" {
		return nil, fmt.Errorf("--destination is required for a withdrawal request")
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

func failureReason(err error) string {
	switch {
	case errors.Is(err, store.ErrStaleRequest) && errors.Is(err, store.ErrWithdrawalLimited):
		return "withdrawal limit reached since the request; it stays PENDING for review"
	case errors.Is(err, store.ErrStaleRequest):
		return "balance changed since the request; it stays PENDING for review"
	case errors.Is(err, store.ErrInsufficientBalance):
		return err.Error()
	case errors.Is(err, store.ErrWithdrawalLimited):
		return err.Error()
	case errors.Is(err, store.ErrAccountAnomaly):
		return "account flagged for manual review"
	case errors.Is(err, store.ErrInvalidTransition):
		return "request was already settled"
	case errors.Is(err, store.ErrNotFound):
		return "account or request not found"
	default:
		return err.Error()
	}
}

func printWithdrawalSummary(title string, result *models.OperationResult, destination string) {
	common.PrintHeader(title, common.DefaultWidth)
	fmt.Printf("User:              %s\n", result.UserId)
	fmt.Printf("Transaction:       %s\n", result.TxId)
	fmt.Printf("Withdrawal Amount: %s\n", common.FormatMoney(result.Amount))
	if destination != "" {
		fmt.Printf("Destination:       %s\n", destination)
	}
	fmt.Printf("Balance:           %s\n", common.FormatMoney(result.NewBalance))
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}

func main() {
	ctx := context.Background()

	// Parse and validate command line flags
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

	zap.L().Info("Initializing services")
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	ctx = models.WithOperator(ctx, "cli")

	switch {
	case req.approve != "":
		result, err := services.Accounts.ApproveWithdrawalTx(ctx, req.approve, req.notes)
		if err != nil {
			fmt.Printf("❌ Approval failed: %s\n", failureReason(err))
			zap.L().Fatal("Withdrawal approval failed", zap.String("tx_id", req.approve), zap.Error(err))
		}
		printWithdrawalSummary("WITHDRAWAL APPROVED", result, "")

	case req.reject != "":
		if err := services.Accounts.RejectWithdrawal(ctx, req.reject, req.notes); err != nil {
			fmt.Printf("❌ Rejection failed: %s\n", failureReason(err))
			zap.L().Fatal("Withdrawal rejection failed", zap.String("tx_id", req.reject), zap.Error(err))
		}
		fmt.Printf("✅ Withdrawal %s rejected\n", req.reject)

	case req.direct:
		result, err := services.Accounts.ApproveWithdrawal(ctx, req.userId, req.amount)
		if err != nil {
			fmt.Printf("❌ Withdrawal failed: %s\n", failureReason(err))
			zap.L().Fatal("Direct withdrawal failed", zap.Error(err))
		}
		printWithdrawalSummary("WITHDRAWAL COMPLETED", result, "")

	default:
		zap.L().Info("Starting withdrawal request",
			zap.String("user_id", req.userId),
			zap.String("amount", req.amount.String()),
			zap.String("destination", req.destination))

		result, err := services.Accounts.WithdrawRequest(ctx, req.userId, req.amount, req.destination)
		if err != nil {
			fmt.Printf("❌ Request failed: %s\n", failureReason(err))
			zap.L().Fatal("Withdrawal request failed", zap.Error(err))
		}
		printWithdrawalSummary("WITHDRAWAL REQUESTED", result, req.destination)
	}
}
