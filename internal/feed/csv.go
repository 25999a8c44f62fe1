package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"invest-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrMissingCloseTime is returned when a closed-positions reply has no
// closetime column, so closed rows cannot be told apart from open ones.
var ErrMissingCloseTime = errors.New("no closetime column in terminal reply")

var closeTimeLayouts = []string{
	"2006.01.02 15:04:05",
	"2006.01.02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006.01.02",
	"2006-01-02",
}

// normalizeColumn maps " Close Time " to "close_time".
func normalizeColumn(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

type table struct {
	columns map[string]int
	rows    [][]string
}

func (t table) get(row []string, names ...string) string {
	for _, name := range names {
		if i, ok := t.columns[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
	}
	return ""
}

func (t table) has(name string) bool {
	_, ok := t.columns[name]
	return ok
}

func readTable(r io.Reader) (table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return table{}, fmt.Errorf("unable to parse terminal csv: %w", err)
	}
	if len(records) == 0 {
		return table{}, nil
	}

	t := table{columns: make(map[string]int, len(records[0])), rows: records[1:]}
	for i, name := range records[0] {
		t.columns[normalizeColumn(name)] = i
	}
	return t, nil
}

// ParseClosedTrades reads a closed-positions reply. Rows without a parseable
// close time are still open and are dropped, as are rows with no ticket.
func ParseClosedTrades(r io.Reader) ([]models.ClosedTrade, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if t.columns == nil {
		return nil, nil
	}
	if !t.has("closetime") {
		return nil, ErrMissingCloseTime
	}

	var trades []models.ClosedTrade
	for _, row := range t.rows {
		closeTime, ok := parseCloseTime(t.get(row, "closetime"))
		if !ok {
			continue
		}

		ticket := t.get(row, "ticket")
		if ticket == "" {
			zap.L().Warn("Dropping closed position without ticket", zap.Strings("row", row))
			continue
		}

		profit, err := decimal.NewFromString(t.get(row, "profit"))
		if err != nil {
			zap.L().Warn("Dropping closed position with unparseable profit",
				zap.String("ticket", ticket),
				zap.Error(err))
			continue
		}

		symbol := t.get(row, "symbol")
		positionType := strings.ToLower(t.get(row, "position_type", "type"))
		trades = append(trades, models.ClosedTrade{
			TradeId:      ticket,
			Symbol:       symbol,
			PositionType: positionType,
			Profit:       profit,
			CloseTime:    closeTime,
			IsRealTrade:  isRealTrade(symbol, positionType, t.has("position_type") || t.has("type")),
		})
	}
	return trades, nil
}

// ParseOpenPositions reads an open-positions reply.
func ParseOpenPositions(r io.Reader) ([]models.OpenPosition, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}

	var positions []models.OpenPosition
	for _, row := range t.rows {
		profit, err := decimal.NewFromString(t.get(row, "profit"))
		if err != nil {
			profit = decimal.Zero
		}
		positions = append(positions, models.OpenPosition{
			TradeId:      t.get(row, "ticket"),
			Symbol:       t.get(row, "symbol"),
			PositionType: strings.ToLower(t.get(row, "position_type", "type")),
			Profit:       profit,
		})
	}
	return positions, nil
}

// isRealTrade excludes balance operations (deposits, withdrawals, credits)
// which the terminal reports with no symbol or a non-trading type.
func isRealTrade(symbol, positionType string, hasType bool) bool {
	if symbol == "" || strings.EqualFold(symbol, "nan") {
		return false
	}
	if !hasType {
		return true
	}
	return positionType == "buy" || positionType == "sell"
}

func parseCloseTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range closeTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			// the terminal reports 1970.01.01 for positions still open
			if t.Year() <= 1970 {
				return time.Time{}, false
			}
			return t, true
		}
	}
	return time.Time{}, false
}
