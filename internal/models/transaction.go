package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TxType is the kind of money movement a transaction records.
type TxType string

const (
	TxDeposit    TxType = "DEPOSIT"
	TxWithdrawal TxType = "WITHDRAWAL"
	TxReferral   TxType = "REFERRAL"
	TxFee        TxType = "FEE"
	TxAdjustment TxType = "ADJUSTMENT"
)

// ParseTxType accepts any casing; "UPDATE" is an alias for ADJUSTMENT.
func ParseTxType(s string) (TxType, error) {
	switch t := TxType(strings.ToUpper(strings.TrimSpace(s))); t {
	case TxDeposit, TxWithdrawal, TxReferral, TxFee, TxAdjustment:
		return t, nil
	case "UPDATE":
		return TxAdjustment, nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
}

// TxStatus is the lifecycle state of a transaction.
type TxStatus string

const (
	StatusPending   TxStatus = "PENDING"
	StatusCompleted TxStatus = "COMPLETED"
	StatusRejected  TxStatus = "REJECTED"
)

// ParseTxStatus accepts any casing.
func ParseTxStatus(s string) (TxStatus, error) {
	switch st := TxStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusCompleted, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("unknown transaction status %q", s)
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s TxStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// CanTransitionTo is the only place status moves are decided:
// PENDING -> COMPLETED | REJECTED.
func (s TxStatus) CanTransitionTo(next TxStatus) bool {
	return s == StatusPending && next.IsTerminal()
}

// Transaction is one entry of the transaction log.
type Transaction struct {
	Id          string          `db:"tx_id" json:"tx_id"`
	Timestamp   time.Time       `db:"timestamp" json:"timestamp"`
	UserId      string          `db:"user_id" json:"user_id"`
	Type        TxType          `db:"tx_type" json:"tx_type"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Status      TxStatus        `db:"status" json:"status"`
	Address     string          `db:"address" json:"address,omitempty"`
	RelatedUser string          `db:"related_user" json:"related_user,omitempty"`
	Notes       string          `db:"notes" json:"notes,omitempty"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// SignedAmount is the amount with the type's direction applied.
func (t Transaction) SignedAmount() decimal.Decimal {
	switch t.Type {
	case TxAdjustment:
		return t.Amount
	case TxDeposit, TxReferral:
		return t.Amount.Abs()
	case TxWithdrawal, TxFee:
		return t.Amount.Abs().Neg()
	default:
		return decimal.Zero
	}
}
