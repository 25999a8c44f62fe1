package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReferralId derives the referral code handed out to a user:
// "REF" + last six characters of the user id + creation MMDD.
func ReferralId(userId string, at time.Time) string {
	suffix := userId
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return "REF" + suffix + at.Format("0102")
}

// Get returns the account for userId or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, userId string) (*models.Account, error) {
	zap.L().Debug("Getting account", zap.String("user_id", userId))
	return getAccount(ctx, s.db, userId)
}

// List returns every account ordered by user id.
func (s *Service) List(ctx context.Context) ([]models.Account, error) {
	return listAccounts(ctx, s.db)
}

// CreateIfAbsent creates the account on first interaction. A duplicate create
// is a no-op. On first creation a resolvable referrer (referral code or user
// id) gets its referral_count incremented in the same transaction.
func (s *Service) CreateIfAbsent(ctx context.Context, userId, referrer string) (*models.Account, bool, error) {
	if userId == "" {
		return nil, false, fmt.Errorf("user id cannot be empty")
	}

	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, persistenceError("begin transaction", err)
	}
	defer tx.Rollback()

	existing, err := getAccount(ctx, tx, userId)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	referrerId := ""
	if referrer != "" {
		err := tx.QueryRowContext(ctx, queryFindReferrer, referrer, referrer, referrer).Scan(&referrerId)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			zap.L().Warn("Referrer not found, creating account without referral",
				zap.String("user_id", userId),
				zap.String("referrer", referrer))
		case err != nil:
			return nil, false, persistenceError("resolve referrer", err)
		}
		if referrerId == userId {
			referrerId = ""
		}
	}

	now := time.Now().UTC()
	referralId := ReferralId(userId, now)
	_, err = tx.ExecContext(ctx, queryInsertAccount, userId, referralId, nullString(referrerId), now, now)
	if err != nil && isUniqueViolation(err, "accounts.referral_id") {
		// Short codes collide when two ids share a suffix on the same day.
		referralId = "REF" + userId + now.Format("0102")
		_, err = tx.ExecContext(ctx, queryInsertAccount, userId, referralId, nullString(referrerId), now, now)
	}
	if err != nil {
		return nil, false, persistenceError("insert account", err)
	}

	if referrerId != "" {
		if _, err := tx.ExecContext(ctx, queryIncrementReferralCount, now, referrerId); err != nil {
			return nil, false, persistenceError("increment referral count", err)
		}
	}

	created, err := getAccount(ctx, tx, userId)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, persistenceError("commit account creation", err)
	}

	zap.L().Info("Account created",
		zap.String("user_id", userId),
		zap.String("referral_id", referralId),
		zap.String("referrer_id", referrerId))

	return created, true, nil
}

// Apply is the single write path for one account. The accounts mutex is held
// across read, mutation and write so concurrent callers never observe the
// same current state.
func (s *Service) Apply(ctx context.Context, userId string, fn store.AccountMutation) (*models.Account, error) {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistenceError("begin transaction", err)
	}
	defer tx.Rollback()

	current, err := getAccount(ctx, tx, userId)
	if err != nil {
		return nil, err
	}

	next, err := fn(*current)
	if err != nil {
		return nil, err
	}
	keepIdentity(*current, &next)

	if err := validateAccount(*current, next); err != nil {
		return nil, err
	}

	next.UpdatedAt = time.Now().UTC()
	if err := updateAccount(ctx, tx, current.Version, next); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, persistenceError("commit account update", err)
	}
	next.Version = current.Version + 1

	zap.L().Debug("Account updated",
		zap.String("user_id", userId),
		zap.String("old_balance", current.Balance.String()),
		zap.String("new_balance", next.Balance.String()),
		zap.Int64("version", next.Version))

	return &next, nil
}

// ApplyAll rewrites the whole table in one transaction. Accounts the mutation
// leaves untouched are not written; an unknown user id aborts the call.
func (s *Service) ApplyAll(ctx context.Context, fn store.TableMutation) ([]models.Account, error) {
	s.accountsMu.Lock()
	defer s.accountsMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistenceError("begin transaction", err)
	}
	defer tx.Rollback()

	current, err := listAccounts(ctx, tx)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string]models.Account, len(current))
	snapshot := make([]models.Account, len(current))
	for i, a := range current {
		byUser[a.UserId] = a
		snapshot[i] = a
	}

	next, err := fn(snapshot)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	written := 0
	for i := range next {
		prev, ok := byUser[next[i].UserId]
		if !ok {
			return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, next[i].UserId)
		}
		keepIdentity(prev, &next[i])
		if accountsEqual(prev, next[i]) {
			continue
		}
		if err := validateAccount(prev, next[i]); err != nil {
			return nil, fmt.Errorf("account %s: %w", prev.UserId, err)
		}
		next[i].UpdatedAt = now
		if err := updateAccount(ctx, tx, prev.Version, next[i]); err != nil {
			return nil, err
		}
		next[i].Version = prev.Version + 1
		byUser[prev.UserId] = next[i]
		written++
	}

	if err := tx.Commit(); err != nil {
		return nil, persistenceError("commit table update", err)
	}

	zap.L().Info("Account table updated",
		zap.Int("accounts", len(current)),
		zap.Int("written", written))

	result := make([]models.Account, 0, len(current))
	for _, a := range current {
		result = append(result, byUser[a.UserId])
	}
	return result, nil
}

// keepIdentity stops a mutation from rewriting fields the store owns.
func keepIdentity(prev models.Account, next *models.Account) {
	next.UserId = prev.UserId
	next.ReferralId = prev.ReferralId
	next.ReferrerId = prev.ReferrerId
	next.Version = prev.Version
	next.CreatedAt = prev.CreatedAt
	next.UpdatedAt = prev.UpdatedAt
}

// validateAccount enforces the ledger invariants before anything is written.
func validateAccount(prev, next models.Account) error {
	if next.Balance.IsNegative() {
		return fmt.Errorf("%w: balance would be %s", store.ErrInsufficientBalance, next.Balance.String())
	}
	if next.Locked.IsNegative() {
		return fmt.Errorf("%w: locked would be %s", store.ErrInvalidAmount, next.Locked.String())
	}
	if next.Locked.GreaterThan(next.Balance) {
		return fmt.Errorf("%w: locked %s exceeds balance %s", store.ErrInsufficientBalance, next.Locked.String(), next.Balance.String())
	}
	if next.TotalDeposits.LessThan(prev.TotalDeposits) {
		return fmt.Errorf("%w: total_deposits cannot decrease", store.ErrInvalidAmount)
	}
	if next.TotalWithdrawals.LessThan(prev.TotalWithdrawals) {
		return fmt.Errorf("%w: total_withdrawals cannot decrease", store.ErrInvalidAmount)
	}
	if next.ReferralEarnings.LessThan(prev.ReferralEarnings) {
		return fmt.Errorf("%w: referral_earnings cannot decrease", store.ErrInvalidAmount)
	}
	if next.ReferralCount < prev.ReferralCount {
		return fmt.Errorf("%w: referral_count cannot decrease", store.ErrInvalidAmount)
	}
	return nil
}

func accountsEqual(a, b models.Account) bool {
	return a.Balance.Equal(b.Balance) &&
		a.Locked.Equal(b.Locked) &&
		a.TotalDeposits.Equal(b.TotalDeposits) &&
		a.TotalWithdrawals.Equal(b.TotalWithdrawals) &&
		a.TotalInterest.Equal(b.TotalInterest) &&
		a.ReferralCount == b.ReferralCount &&
		a.ReferralEarnings.Equal(b.ReferralEarnings) &&
		a.FirstDeposit == b.FirstDeposit &&
		a.FirstDepositDate.Equal(b.FirstDepositDate) &&
		a.FirstDepositAmount.Equal(b.FirstDepositAmount) &&
		a.LastProfitDate.Equal(b.LastProfitDate)
}

func updateAccount(ctx context.Context, q querier, version int64, a models.Account) error {
	result, err := q.ExecContext(ctx, queryUpdateAccount,
		a.Balance.String(), a.Locked.String(), a.TotalDeposits.String(), a.TotalWithdrawals.String(), a.TotalInterest.String(),
		a.ReferralCount, a.ReferralEarnings.String(),
		a.FirstDeposit, nullTime(a.FirstDepositDate), a.FirstDepositAmount.String(), nullTime(a.LastProfitDate),
		a.UpdatedAt, a.UserId, version)
	if err != nil {
		return persistenceError("update account", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistenceError("check rows affected", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %s update failed - %w", a.UserId, store.ErrConcurrentModification)
	}
	return nil
}

func getAccount(ctx context.Context, q querier, userId string) (*models.Account, error) {
	row := q.QueryRowContext(ctx, queryGetAccount, userId)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, userId)
	}
	if err != nil {
		return nil, persistenceError("get account", err)
	}
	return account, nil
}

func listAccounts(ctx context.Context, q querier) ([]models.Account, error) {
	rows, err := q.QueryContext(ctx, queryListAccounts)
	if err != nil {
		return nil, persistenceError("list accounts", err)
	}
	defer closeRows(rows)

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, persistenceError("scan account", err)
		}
		accounts = append(accounts, *account)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during account row iteration", zap.Error(err))
		return nil, persistenceError("iterate accounts", err)
	}

	return accounts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var balance, locked, deposits, withdrawals, interest, earnings, firstAmount string
	var referrerId sql.NullString
	var firstDepositDate, lastProfitDate sql.NullTime

	err := row.Scan(&a.UserId, &balance, &locked, &deposits, &withdrawals, &interest,
		&a.ReferralId, &referrerId, &a.ReferralCount, &earnings,
		&a.FirstDeposit, &firstDepositDate, &firstAmount, &lastProfitDate,
		&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.ReferrerId = referrerId.String
	a.FirstDepositDate = firstDepositDate.Time
	a.LastProfitDate = lastProfitDate.Time

	fields := []struct {
		raw  string
		dest *decimal.Decimal
		name string
	}{
		{balance, &a.Balance, "balance"},
		{locked, &a.Locked, "locked"},
		{deposits, &a.TotalDeposits, "total_deposits"},
		{withdrawals, &a.TotalWithdrawals, "total_withdrawals"},
		{interest, &a.TotalInterest, "total_interest"},
		{earnings, &a.ReferralEarnings, "referral_earnings"},
		{firstAmount, &a.FirstDepositAmount, "first_deposit_amount"},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s '%s': %w", f.name, f.raw, err)
		}
		*f.dest = d
	}

	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
