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

package limiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"go.uber.org/zap"
)

// Limiter caps withdrawals per user within a fixed window counted in days
// from the last withdrawal.
type Limiter struct {
	store        store.CooldownStore
	cooldownDays int
	maxPerPeriod int
	now          func() time.Time
	mu           sync.Mutex
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func New(cooldownStore store.CooldownStore, cooldownDays, maxPerPeriod int, opts ...Option) *Limiter {
	if cooldownDays <= 0 {
		cooldownDays = 30
	}
	if maxPerPeriod <= 0 {
		maxPerPeriod = 1
	}
	l := &Limiter{
		store:        cooldownStore,
		cooldownDays: cooldownDays,
		maxPerPeriod: maxPerPeriod,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CanWithdraw is true with no record, or when fewer than maxPerPeriod
// withdrawals fall inside the current window.
func (l *Limiter) CanWithdraw(ctx context.Context, userId string) (bool, error) {
	record, err := l.store.GetCooldown(ctx, userId)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return l.effectiveCount(*record) < l.maxPerPeriod, nil
}

// NextAllowed returns the first day a limited user may withdraw again, or the
// zero time when nothing is recorded.
func (l *Limiter) NextAllowed(ctx context.Context, userId string) (time.Time, error) {
	record, err := l.store.GetCooldown(ctx, userId)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return record.LastWithdrawalDate.AddDate(0, 0, l.cooldownDays), nil
}

// RecordWithdrawal stamps today as the last withdrawal and bumps the counter,
// starting a new window when the previous one has elapsed.
func (l *Limiter) RecordWithdrawal(ctx context.Context, userId string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	record, err := l.store.GetCooldown(ctx, userId)
	switch {
	case err == nil:
		count = l.effectiveCount(*record)
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	next := models.CooldownRecord{
		UserId:               userId,
		LastWithdrawalDate:   l.today(),
		WithdrawalsThisMonth: count + 1,
	}
	if err := l.store.PutCooldown(ctx, next); err != nil {
		return err
	}

	zap.L().Info("Withdrawal recorded for rate limiting",
		zap.String("user_id", userId),
		zap.Int("withdrawals_this_period", next.WithdrawalsThisMonth))
	return nil
}

func (l *Limiter) effectiveCount(record models.CooldownRecord) int {
	if l.daysSince(record.LastWithdrawalDate) >= l.cooldownDays {
		return 0
	}
	return record.WithdrawalsThisMonth
}

func (l *Limiter) daysSince(day time.Time) int {
	last := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return int(l.today().Sub(last).Hours() / 24)
}

func (l *Limiter) today() time.Time {
	now := l.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
