package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database       DatabaseConfig
	OperationsFile string
	Operations     OperationsConfig
	Distributor    DistributorConfig
	Feed           FeedConfig
	Formance       FormanceConfig
	Telegram       TelegramConfig
	Redis          RedisConfig
	Log            LogConfig
	HTTP           HTTPConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// OperationsConfig holds the money rules applied by account operations.
// Loaded from a yaml file; see common.LoadOperationsConfig.
type OperationsConfig struct {
	FeeRate                 decimal.Decimal
	ReferralBonusRate       decimal.Decimal
	MinDeposit              decimal.Decimal
	MinWithdrawal           decimal.Decimal
	PrincipalLock           bool
	CooldownDays            int
	MaxWithdrawalsPerPeriod int
	MaterialityThreshold    decimal.Decimal
}

// DistributorConfig holds profit distributor scheduling settings
type DistributorConfig struct {
	Schedule    string
	FeedTimeout time.Duration
}

// FeedConfig holds the trading terminal endpoint
type FeedConfig struct {
	Endpoint string
}

// FormanceConfig enables the optional ledger mirror when StackURL is set
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
	Asset        string
}

// TelegramConfig holds admin notification settings
type TelegramConfig struct {
	BotToken     string
	AdminChatIds []int64
}

// RedisConfig selects the cooldown backend
type RedisConfig struct {
	CooldownBackend string
	Addr            string
	Password        string
	DB              int
}

// LogConfig holds optional log file rotation settings
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// HTTPConfig holds the ops HTTP listener address; empty disables it
type HTTPConfig struct {
	Addr string
}
