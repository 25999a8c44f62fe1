package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func writeOperationsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "operations.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write operations file: %v", err)
	}
	return path
}

func TestLoadOperationsConfig_MissingFile(t *testing.T) {
	cfg, err := LoadOperationsConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for a missing file, got %v", err)
	}
	if !cfg.FeeRate.Equal(decimal.RequireFromString("0.10")) || !cfg.PrincipalLock || cfg.CooldownDays != 30 {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
}

func TestLoadOperationsConfig_Overrides(t *testing.T) {
	path := writeOperationsFile(t, `
fee_rate: "0.05"
min_deposit: "250"
principal_lock: false
cooldown_days: 7
`)

	cfg, err := LoadOperationsConfig(path)
	if err != nil {
		t.Fatalf("LoadOperationsConfig failed: %v", err)
	}
	if !cfg.FeeRate.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("Expected fee 0.05, got %s", cfg.FeeRate)
	}
	if !cfg.MinDeposit.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Expected min deposit 250, got %s", cfg.MinDeposit)
	}
	if cfg.PrincipalLock {
		t.Error("Expected principal lock disabled")
	}
	if cfg.CooldownDays != 7 {
		t.Errorf("Expected 7 cooldown days, got %d", cfg.CooldownDays)
	}
	// Untouched keys keep their defaults.
	if cfg.MaxWithdrawalsPerPeriod != 1 || !cfg.MinWithdrawal.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected defaults for absent keys, got %+v", cfg)
	}
}

func TestLoadOperationsConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad decimal", `fee_rate: "ten percent"`},
		{"negative", `min_withdrawal: "-5"`},
		{"fee of one", `fee_rate: "1"`},
		{"zero cooldown", `cooldown_days: 0`},
		{"not yaml", `fee_rate: [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadOperationsConfig(writeOperationsFile(t, tt.content)); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
