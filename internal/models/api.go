package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationResult is returned by account operations to CLI and HTTP callers.
type OperationResult struct {
	Success    bool            `json:"success"`
	UserId     string          `json:"user_id,omitempty"`
	TxId       string          `json:"tx_id,omitempty"`
	Amount     decimal.Decimal `json:"amount,omitempty"`
	NewBalance decimal.Decimal `json:"new_balance,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// ReconciliationEntry compares the log-derived balance of one user with the
// ledger balance.
type ReconciliationEntry struct {
	UserId         string          `json:"user_id"`
	Calculated     decimal.Decimal `json:"calculated"`
	Actual         decimal.Decimal `json:"actual"`
	Difference     decimal.Decimal `json:"difference"`
	Discrepancy    bool            `json:"discrepancy"`
	AccountMissing bool            `json:"account_missing,omitempty"`
}

// DistributionResult summarizes one profit distribution cycle.
type DistributionResult struct {
	CycleId          string                     `json:"cycle_id"`
	TradesProcessed  int                        `json:"trades_processed"`
	TradeIds         []string                   `json:"trade_ids"`
	TotalClosedPL    decimal.Decimal            `json:"total_closed_pl"`
	TotalBalances    decimal.Decimal            `json:"total_balances"`
	AccountsCredited int                        `json:"accounts_credited"`
	Shares           map[string]decimal.Decimal `json:"shares"`
	Skipped          string                     `json:"skipped,omitempty"`
	CompletedAt      time.Time                  `json:"completed_at"`
}

// Applied reports whether the cycle changed any balance.
func (r *DistributionResult) Applied() bool {
	return r != nil && r.Skipped == "" && r.AccountsCredited > 0
}
