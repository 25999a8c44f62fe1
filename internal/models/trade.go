package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClosedTrade is one closed position reported by the trading terminal.
type ClosedTrade struct {
	TradeId      string          `json:"trade_id"`
	Symbol       string          `json:"symbol"`
	PositionType string          `json:"position_type"`
	Profit       decimal.Decimal `json:"profit"`
	CloseTime    time.Time       `json:"close_time"`
	IsRealTrade  bool            `json:"is_real_trade"`
}

// OpenPosition is a position still open on the terminal.
type OpenPosition struct {
	TradeId      string          `json:"trade_id"`
	Symbol       string          `json:"symbol"`
	PositionType string          `json:"position_type"`
	Profit       decimal.Decimal `json:"profit"`
}

// CooldownRecord tracks withdrawal usage for the rate limiter.
type CooldownRecord struct {
	UserId               string    `db:"user_id" json:"user_id"`
	LastWithdrawalDate   time.Time `db:"last_withdrawal_date" json:"last_withdrawal_date"`
	WithdrawalsThisMonth int       `db:"withdrawals_this_month" json:"withdrawals_this_month"`
}
