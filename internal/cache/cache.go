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

package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cooldownNamespace = "cooldown"
	dateLayout        = "2006-01-02"

	fieldLastWithdrawal = "last_withdrawal_date"
	fieldWithdrawals    = "withdrawals_this_month"
)

// Cache is a Redis-backed store.CooldownStore.
type Cache struct {
	client    redis.UniversalClient
	retention time.Duration
}

var _ store.CooldownStore = (*Cache)(nil)

// NewCache connects to Redis. Records expire after retention so idle users
// drop out of the keyspace; zero keeps them forever.
func NewCache(ctx context.Context, cfg models.RedisConfig, retention time.Duration) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("unable to reach redis at %s: %w", cfg.Addr, err)
	}

	zap.L().Info("Redis cooldown store connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return &Cache{client: rdb, retention: retention}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func key(namespace, id string) string {
	return namespace + ":" + id
}

// GetCooldown returns the limiter record for userId or store.ErrNotFound.
func (c *Cache) GetCooldown(ctx context.Context, userId string) (*models.CooldownRecord, error) {
	fields, err := c.client.HGetAll(ctx, key(cooldownNamespace, userId)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: get cooldown: %w", store.ErrPersistence, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: cooldown for %s", store.ErrNotFound, userId)
	}

	last, err := time.Parse(dateLayout, fields[fieldLastWithdrawal])
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s '%s': %w", fieldLastWithdrawal, fields[fieldLastWithdrawal], err)
	}
	count, err := strconv.Atoi(fields[fieldWithdrawals])
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s '%s': %w", fieldWithdrawals, fields[fieldWithdrawals], err)
	}

	return &models.CooldownRecord{
		UserId:               userId,
		LastWithdrawalDate:   last,
		WithdrawalsThisMonth: count,
	}, nil
}

// PutCooldown replaces the limiter record for record.UserId.
func (c *Cache) PutCooldown(ctx context.Context, record models.CooldownRecord) error {
	if record.UserId == "" {
		return errors.New("user id cannot be empty")
	}

	k := key(cooldownNamespace, record.UserId)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k,
			fieldLastWithdrawal, record.LastWithdrawalDate.Format(dateLayout),
			fieldWithdrawals, record.WithdrawalsThisMonth)
		if c.retention > 0 {
			pipe.Expire(ctx, k, c.retention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: put cooldown: %w", store.ErrPersistence, err)
	}
	return nil
}
