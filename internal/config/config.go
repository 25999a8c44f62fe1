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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"invest-ledger-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	feedTimeout, err := getEnvDuration("FEED_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	adminChatIds, err := getEnvInt64List("ADMIN_CHAT_IDS")
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "ledger.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		OperationsFile: getEnvString("OPERATIONS_FILE", "operations.yaml"),
		Distributor: models.DistributorConfig{
			Schedule:    getEnvString("DISTRIBUTOR_SCHEDULE", "*/5 * * * *"),
			FeedTimeout: feedTimeout,
		},
		Feed: models.FeedConfig{
			Endpoint: getEnvString("TERMINAL_ENDPOINT", "tcp://127.0.0.1:5555"),
		},
		Formance: models.FormanceConfig{
			StackURL:     os.Getenv("FORMANCE_STACK_URL"),
			ClientID:     os.Getenv("FORMANCE_CLIENT_ID"),
			ClientSecret: os.Getenv("FORMANCE_CLIENT_SECRET"),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "invest-ledger"),
			Asset:        getEnvString("FORMANCE_ASSET", "USDT"),
		},
		Telegram: models.TelegramConfig{
			BotToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
			AdminChatIds: adminChatIds,
		},
		Redis: models.RedisConfig{
			CooldownBackend: strings.ToLower(getEnvString("COOLDOWN_BACKEND", "sqlite")),
			Addr:            getEnvString("REDIS_ADDR", "localhost:6379"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              getEnvInt("REDIS_DB", 0),
		},
		Log: models.LogConfig{
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		},
		HTTP: models.HTTPConfig{
			Addr: os.Getenv("HTTP_ADDR"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvInt64List parses a comma separated list such as "111,222".
func getEnvInt64List(key string) ([]int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, nil
	}

	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id in %s: %q (%w)", key, part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
