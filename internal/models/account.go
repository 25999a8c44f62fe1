package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the per-user ledger record. It is always read and written
// whole; mutations take an Account and return an Account.
type Account struct {
	UserId             string          `db:"user_id" json:"user_id"`
	Balance            decimal.Decimal `db:"balance" json:"balance"`
	Locked             decimal.Decimal `db:"locked" json:"locked"`
	TotalDeposits      decimal.Decimal `db:"total_deposits" json:"total_deposits"`
	TotalWithdrawals   decimal.Decimal `db:"total_withdrawals" json:"total_withdrawals"`
	TotalInterest      decimal.Decimal `db:"total_interest" json:"total_interest"`
	ReferralId         string          `db:"referral_id" json:"referral_id"`
	ReferrerId         string          `db:"referrer_id" json:"referrer_id,omitempty"`
	ReferralCount      int64           `db:"referral_count" json:"referral_count"`
	ReferralEarnings   decimal.Decimal `db:"referral_earnings" json:"referral_earnings"`
	FirstDeposit       bool            `db:"first_deposit" json:"first_deposit"`
	FirstDepositDate   time.Time       `db:"first_deposit_date" json:"first_deposit_date,omitempty"`
	FirstDepositAmount decimal.Decimal `db:"first_deposit_amount" json:"first_deposit_amount"`
	LastProfitDate     time.Time       `db:"last_profit_date" json:"last_profit_date,omitempty"`
	Version            int64           `db:"version" json:"version"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// Available is the part of the balance not marked as locked.
func (a Account) Available() decimal.Decimal {
	return a.Balance.Sub(a.Locked)
}

// HasReferrer reports whether the account was created through a referral.
func (a Account) HasReferrer() bool {
	return a.ReferrerId != ""
}
