package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"
)

// Cooldown dates are kept at day precision.
const cooldownDateLayout = "2006-01-02"

// GetCooldown returns the limiter record for userId or store.ErrNotFound.
func (s *Service) GetCooldown(ctx context.Context, userId string) (*models.CooldownRecord, error) {
	var record models.CooldownRecord
	var lastDate string

	err := s.db.QueryRowContext(ctx, queryGetCooldown, userId).Scan(&record.UserId, &lastDate, &record.WithdrawalsThisMonth)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: cooldown for %s", store.ErrNotFound, userId)
	}
	if err != nil {
		return nil, persistenceError("get cooldown", err)
	}

	record.LastWithdrawalDate, err = time.Parse(cooldownDateLayout, lastDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_withdrawal_date '%s': %w", lastDate, err)
	}
	return &record, nil
}

// PutCooldown replaces the limiter record for record.UserId.
func (s *Service) PutCooldown(ctx context.Context, record models.CooldownRecord) error {
	s.cooldownsMu.Lock()
	defer s.cooldownsMu.Unlock()

	_, err := s.db.ExecContext(ctx, queryUpsertCooldown,
		record.UserId, record.LastWithdrawalDate.Format(cooldownDateLayout), record.WithdrawalsThisMonth)
	if err != nil {
		return persistenceError("upsert cooldown", err)
	}
	return nil
}
