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

package scheduler

import (
	"context"
	"fmt"
	"time"

	"invest-ledger-go/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultSchedule = "*/5 * * * *"

// Runner is one distribution cycle.
type Runner interface {
	RunCycle(ctx context.Context) (*models.DistributionResult, error)
}

// Scheduler triggers the profit distributor on a cron schedule. A tick that
// fires while the previous cycle is still running is skipped.
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	schedule string
}

func New(runner Runner, schedule string, loc *time.Location) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if loc == nil {
		loc = time.UTC
	}

	logger := cronLogger{zap.S().Named("cron")}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Scheduler{cron: c, runner: runner, schedule: schedule}
}

// Start registers the distribution job and starts the cron loop. ctx is handed
// to every cycle.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid distributor schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	zap.L().Info("Distributor scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// RunOnce runs a single cycle and logs its outcome.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	result, err := s.runner.RunCycle(ctx)
	if err != nil {
		zap.L().Error("Distribution cycle failed", zap.Error(err))
		return
	}
	if result.Skipped != "" {
		zap.L().Debug("Distribution cycle skipped",
			zap.String("cycle_id", result.CycleId),
			zap.String("reason", result.Skipped))
		return
	}
	zap.L().Info("Distribution cycle finished",
		zap.String("cycle_id", result.CycleId),
		zap.Int("accounts", result.AccountsCredited),
		zap.String("total_closed_pl", result.TotalClosedPL.String()))
}

// Stop halts the schedule and waits for a running cycle to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.L().Info("Distributor scheduler stopped")
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
