package store

import (
	"context"
	"errors"

	"invest-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound               = errors.New("not found")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrPersistence            = errors.New("persistence failure")
	ErrDuplicateTrade         = errors.New("trade already processed")
	ErrStaleRequest           = errors.New("request no longer valid")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrWithdrawalLimited      = errors.New("withdrawal limit reached")
	ErrAccountAnomaly         = errors.New("account flagged for review")
)

// AccountMutation produces the next state of an account from the current one.
// Returning an error leaves the store untouched.
type AccountMutation func(models.Account) (models.Account, error)

// TableMutation is the whole-table variant of AccountMutation.
type TableMutation func([]models.Account) ([]models.Account, error)

// RecordParams describes a new transaction log entry. Id is generated when
// empty.
type RecordParams struct {
	Id          string
	UserId      string
	Type        models.TxType
	Amount      decimal.Decimal
	Address     string
	RelatedUser string
	Notes       string
}

// AccountStore is the ledger of per-user accounts. Apply and ApplyAll are the
// only write paths.
type AccountStore interface {
	Get(ctx context.Context, userId string) (*models.Account, error)
	// CreateIfAbsent returns the account and whether it was created by this call.
	CreateIfAbsent(ctx context.Context, userId, referrer string) (*models.Account, bool, error)
	Apply(ctx context.Context, userId string, fn AccountMutation) (*models.Account, error)
	ApplyAll(ctx context.Context, fn TableMutation) ([]models.Account, error)
	List(ctx context.Context) ([]models.Account, error)
}

// TransactionLog is the append-mostly log of money movements.
type TransactionLog interface {
	Record(ctx context.Context, params RecordParams) (string, error)
	RecordCompleted(ctx context.Context, params RecordParams) (string, error)
	// SetStatus returns false when txId is unknown.
	SetStatus(ctx context.Context, txId string, status models.TxStatus, notes string) (bool, error)
	GetTransaction(ctx context.Context, txId string) (*models.Transaction, error)
	ListForUser(ctx context.Context, userId string, limit int, typeFilter models.TxType) ([]models.Transaction, error)
	ReconcileAll(ctx context.Context) (map[string]decimal.Decimal, error)
}

// ReconcileSource reads the log fold and the account table as of one point in
// time.
type ReconcileSource interface {
	ReconcileSnapshot(ctx context.Context) (map[string]decimal.Decimal, []models.Account, error)
}

// TradeSet is the set of external trade ids already folded into balances.
type TradeSet interface {
	ProcessedTrades(ctx context.Context, tradeIds []string) (map[string]bool, error)
	MarkProcessed(ctx context.Context, tradeIds []string) error
}

// CooldownStore persists withdrawal rate limiter state.
type CooldownStore interface {
	GetCooldown(ctx context.Context, userId string) (*models.CooldownRecord, error)
	PutCooldown(ctx context.Context, record models.CooldownRecord) error
}
