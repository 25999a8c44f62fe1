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

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"invest-ledger-go/internal/common"
	"invest-ledger-go/internal/config"
	"invest-ledger-go/internal/feed"

	"go.uber.org/zap"
)

func printPeriod(label string, s feed.PeriodStats) {
	fmt.Printf("%-8s %6d trades %6d wins %8s%% %15s\n",
		label, s.Trades, s.Wins, s.WinRate().StringFixed(2), common.FormatMoney(s.Profit))
}

func main() {
	timeoutFlag := flag.Duration("timeout", 0, "Terminal request timeout (defaults to FEED_TIMEOUT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	timeout := cfg.Distributor.FeedTimeout
	if *timeoutFlag > 0 {
		timeout = *timeoutFlag
	}

	terminal, err := feed.NewTerminalClient(cfg.Feed.Endpoint)
	if err != nil {
		zap.L().Fatal("Failed to create terminal client", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	closed, err := terminal.FetchClosedTrades(ctx)
	if err != nil {
		zap.L().Fatal("Failed to fetch closed trades", zap.String("endpoint", cfg.Feed.Endpoint), zap.Error(err))
	}
	open, err := terminal.FetchOpenPositions(ctx)
	if err != nil {
		zap.L().Fatal("Failed to fetch open positions", zap.String("endpoint", cfg.Feed.Endpoint), zap.Error(err))
	}

	stats := feed.Summarize(closed, time.Now().UTC())

	common.PrintHeader("TRADING PERFORMANCE", common.DefaultWidth)
	printPeriod("Today", stats.Today)
	printPeriod("Week", stats.Week)
	printPeriod("Month", stats.Month)

	common.PrintHeader(fmt.Sprintf("OPEN POSITIONS (%d)", len(open)), common.DefaultWidth)
	for i, p := range open {
		fmt.Printf("%s %-10s %-12s %-5s %15s\n",
			common.BoxPrefix(i == len(open)-1), p.TradeId, p.Symbol, p.PositionType, common.FormatMoney(p.Profit))
	}
	fmt.Println()

	zap.L().Info("Trading report completed",
		zap.Int("closed_trades", len(closed)),
		zap.Int("open_positions", len(open)))
}
