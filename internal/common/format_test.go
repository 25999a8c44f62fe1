package common

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"0", "$0.00"},
		{"5.5", "$5.50"},
		{"999.999", "$1,000.00"},
		{"1234567.891", "$1,234,567.89"},
		{"-1200", "-$1,200.00"},
	}
	for _, tt := range tests {
		if got := FormatMoney(decimal.RequireFromString(tt.amount)); got != tt.want {
			t.Errorf("FormatMoney(%s) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestFormatDate(t *testing.T) {
	if got := FormatDate(time.Time{}); got != "-" {
		t.Errorf("Expected - for zero time, got %q", got)
	}
	d := time.Date(2024, time.March, 7, 9, 30, 0, 0, time.UTC)
	if got := FormatDate(d); got != "2024-03-07 09:30" {
		t.Errorf("Unexpected date format %q", got)
	}
}
