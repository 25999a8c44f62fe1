package database

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// sqlite limits bound parameters per statement
const tradeLookupChunk = 500

// ProcessedTrades reports which of tradeIds are already in the processed set.
func (s *Service) ProcessedTrades(ctx context.Context, tradeIds []string) (map[string]bool, error) {
	processed := make(map[string]bool)

	for start := 0; start < len(tradeIds); start += tradeLookupChunk {
		end := min(start+tradeLookupChunk, len(tradeIds))
		chunk := tradeIds[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx, "SELECT trade_id FROM processed_trades WHERE trade_id IN ("+placeholders+")", args...)
		if err != nil {
			return nil, persistenceError("query processed trades", err)
		}

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				closeRows(rows)
				return nil, persistenceError("scan processed trade", err)
			}
			processed[id] = true
		}
		err = rows.Err()
		closeRows(rows)
		if err != nil {
			return nil, persistenceError("iterate processed trades", err)
		}
	}

	return processed, nil
}

// MarkProcessed merges tradeIds into the processed set in one transaction.
func (s *Service) MarkProcessed(ctx context.Context, tradeIds []string) error {
	if len(tradeIds) == 0 {
		return nil
	}

	s.tradesMu.Lock()
	defer s.tradesMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("begin transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, id := range tradeIds {
		if _, err := tx.ExecContext(ctx, queryInsertProcessedTrade, id, now); err != nil {
			return persistenceError("insert processed trade", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistenceError("commit processed trades", err)
	}

	zap.L().Info("Trades marked as processed", zap.Int("count", len(tradeIds)))
	return nil
}

// CountProcessedTrades is reported by the ops endpoints.
func (s *Service) CountProcessedTrades(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, queryCountProcessedTrades).Scan(&count); err != nil {
		return 0, persistenceError("count processed trades", err)
	}
	return count, nil
}
