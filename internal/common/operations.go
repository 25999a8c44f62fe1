package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"invest-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// operationsFile mirrors operations.yaml. Money values are strings so they
// never pass through a float.
type operationsFile struct {
	FeeRate                 string `yaml:"fee_rate"`
	ReferralBonusRate       string `yaml:"referral_bonus_rate"`
	MinDeposit              string `yaml:"min_deposit"`
	MinWithdrawal           string `yaml:"min_withdrawal"`
	PrincipalLock           *bool  `yaml:"principal_lock"`
	CooldownDays            *int   `yaml:"cooldown_days"`
	MaxWithdrawalsPerPeriod *int   `yaml:"max_withdrawals_per_period"`
	MaterialityThreshold    string `yaml:"materiality_threshold"`
}

func DefaultOperationsConfig() models.OperationsConfig {
	return models.OperationsConfig{
		FeeRate:                 decimal.RequireFromString("0.10"),
		ReferralBonusRate:       decimal.RequireFromString("0.10"),
		MinDeposit:              decimal.NewFromInt(100),
		MinWithdrawal:           decimal.NewFromInt(50),
		PrincipalLock:           true,
		CooldownDays:            30,
		MaxWithdrawalsPerPeriod: 1,
		MaterialityThreshold:    decimal.RequireFromString("1.00"),
	}
}

// LoadOperationsConfig reads the money rules. A missing file yields the
// defaults; keys absent from the file keep their default value.
func LoadOperationsConfig(operationsFile string) (models.OperationsConfig, error) {
	cfg := DefaultOperationsConfig()

	path := operationsFile
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return cfg, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, operationsFile)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		zap.L().Info("No operations file, using defaults", zap.String("file", operationsFile))
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("unable to read %s: %w", operationsFile, err)
	}

	var raw operationsFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("unable to parse %s: %w", operationsFile, err)
	}

	money := []struct {
		key   string
		value string
		dst   *decimal.Decimal
	}{
		{"fee_rate", raw.FeeRate, &cfg.FeeRate},
		{"referral_bonus_rate", raw.ReferralBonusRate, &cfg.ReferralBonusRate},
		{"min_deposit", raw.MinDeposit, &cfg.MinDeposit},
		{"min_withdrawal", raw.MinWithdrawal, &cfg.MinWithdrawal},
		{"materiality_threshold", raw.MaterialityThreshold, &cfg.MaterialityThreshold},
	}
	for _, m := range money {
		if m.value == "" {
			continue
		}
		d, err := decimal.NewFromString(m.value)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s %q in %s: %w", m.key, m.value, operationsFile, err)
		}
		if d.IsNegative() {
			return cfg, fmt.Errorf("%s cannot be negative in %s", m.key, operationsFile)
		}
		*m.dst = d
	}

	if raw.PrincipalLock != nil {
		cfg.PrincipalLock = *raw.PrincipalLock
	}
	if raw.CooldownDays != nil {
		cfg.CooldownDays = *raw.CooldownDays
	}
	if raw.MaxWithdrawalsPerPeriod != nil {
		cfg.MaxWithdrawalsPerPeriod = *raw.MaxWithdrawalsPerPeriod
	}

	if cfg.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return cfg, fmt.Errorf("fee_rate must be below 1 in %s", operationsFile)
	}
	if cfg.CooldownDays <= 0 || cfg.MaxWithdrawalsPerPeriod <= 0 {
		return cfg, fmt.Errorf("cooldown_days and max_withdrawals_per_period must be positive in %s", operationsFile)
	}

	return cfg, nil
}
