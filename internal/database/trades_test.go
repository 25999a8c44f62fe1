package database

import (
	"context"
	"fmt"
	"testing"
)

func TestMarkProcessed_Idempotent(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	if err := service.MarkProcessed(ctx, []string{"1001", "1002"}); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if err := service.MarkProcessed(ctx, []string{"1002", "1003"}); err != nil {
		t.Fatalf("Second MarkProcessed failed: %v", err)
	}

	processed, err := service.ProcessedTrades(ctx, []string{"1001", "1003", "1004"})
	if err != nil {
		t.Fatalf("ProcessedTrades failed: %v", err)
	}
	if !processed["1001"] || !processed["1003"] || processed["1004"] {
		t.Errorf("Unexpected processed set: %v", processed)
	}

	count, err := service.CountProcessedTrades(ctx)
	if err != nil {
		t.Fatalf("CountProcessedTrades failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 processed trades, got %d", count)
	}
}

func TestProcessedTrades_LargeLookup(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	var tradeIds []string
	for i := 0; i < 1200; i++ {
		tradeIds = append(tradeIds, fmt.Sprintf("t%d", i))
	}
	if err := service.MarkProcessed(ctx, tradeIds[:700]); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	processed, err := service.ProcessedTrades(ctx, tradeIds)
	if err != nil {
		t.Fatalf("ProcessedTrades failed: %v", err)
	}
	if len(processed) != 700 {
		t.Errorf("Expected 700 processed, got %d", len(processed))
	}
}

func TestProcessedTrades_Empty(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	processed, err := service.ProcessedTrades(context.Background(), nil)
	if err != nil {
		t.Fatalf("ProcessedTrades failed: %v", err)
	}
	if len(processed) != 0 {
		t.Errorf("Expected empty set, got %v", processed)
	}
}
