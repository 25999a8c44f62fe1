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
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"invest-ledger-go/internal/common"
	"invest-ledger-go/internal/config"
	"invest-ledger-go/internal/distributor"
	"invest-ledger-go/internal/httpapi"
	"invest-ledger-go/internal/scheduler"

	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "Run a single distribution cycle and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting profit distributor")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	dist, err := services.NewDistributor(cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize distributor", zap.Error(err))
	}

	if *once {
		runOnce(ctx, dist)
		return
	}

	sched := scheduler.New(dist, cfg.Distributor.Schedule, time.UTC)
	if err := sched.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start scheduler", zap.Error(err))
	}

	httpDone := make(chan struct{})
	if cfg.HTTP.Addr != "" {
		server := httpapi.NewServer(cfg.HTTP.Addr, httpapi.NewHandler(services.Accounts, services.Reconciler))
		go func() {
			defer close(httpDone)
			if err := server.Run(ctx); err != nil {
				zap.L().Error("Ops HTTP server failed", zap.Error(err))
			}
		}()
	} else {
		close(httpDone)
	}

	zap.L().Info("Distributor running", zap.String("schedule", cfg.Distributor.Schedule))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping distributor...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		sched.Stop()
		<-httpDone
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Distributor stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}

func runOnce(ctx context.Context, dist *distributor.Distributor) {
	result, err := dist.RunCycle(ctx)
	if err != nil {
		zap.L().Fatal("Distribution cycle failed", zap.Error(err))
	}

	if result.Skipped != "" {
		fmt.Printf("Cycle skipped: %s\n", result.Skipped)
		return
	}

	common.PrintHeader("PROFIT DISTRIBUTION", common.DefaultWidth)
	fmt.Println(distributor.Summary(result))
	common.PrintSeparator("=", common.DefaultWidth)
	userIds := make([]string, 0, len(result.Shares))
	for userId := range result.Shares {
		userIds = append(userIds, userId)
	}
	sort.Strings(userIds)
	for _, userId := range userIds {
		fmt.Printf("  %-20s %15s\n", userId, common.FormatMoney(result.Shares[userId]))
	}
	fmt.Println()
}
