package feed

import (
	"time"

	"invest-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// PeriodStats is the realized P/L of real trades over one period.
type PeriodStats struct {
	Trades int             `json:"trades"`
	Wins   int             `json:"wins"`
	Profit decimal.Decimal `json:"profit"`
}

// WinRate is the percentage of winning trades, zero when there are none.
func (s PeriodStats) WinRate() decimal.Decimal {
	if s.Trades == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.Wins)).Div(decimal.NewFromInt(int64(s.Trades))).Mul(decimal.NewFromInt(100)).Round(2)
}

// Stats groups trading performance by day, week (from Monday) and month.
type Stats struct {
	Today PeriodStats `json:"today"`
	Week  PeriodStats `json:"week"`
	Month PeriodStats `json:"month"`
}

// Summarize computes Stats for the calendar periods containing now.
func Summarize(trades []models.ClosedTrade, now time.Time) Stats {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekday := (int(today.Weekday()) + 6) % 7
	startOfWeek := today.AddDate(0, 0, -weekday)
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var s Stats
	for _, t := range trades {
		if !t.IsRealTrade {
			continue
		}
		closed := t.CloseTime.In(now.Location())
		if !closed.Before(today) {
			s.Today.add(t.Profit)
		}
		if !closed.Before(startOfWeek) {
			s.Week.add(t.Profit)
		}
		if !closed.Before(startOfMonth) {
			s.Month.add(t.Profit)
		}
	}
	return s
}

func (s *PeriodStats) add(profit decimal.Decimal) {
	s.Trades++
	if profit.IsPositive() {
		s.Wins++
	}
	s.Profit = s.Profit.Add(profit)
}
