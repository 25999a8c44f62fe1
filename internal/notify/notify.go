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

package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"invest-ledger-go/internal/models"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// New returns a Telegram notifier when a bot token is configured and a log
// notifier otherwise.
func New(cfg models.TelegramConfig) (Notifier, error) {
	if cfg.BotToken == "" {
		zap.L().Info("No Telegram bot token configured, admin notifications go to the log")
		return LogNotifier{}, nil
	}
	return NewTelegramNotifier(cfg)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, text string) error {
	zap.L().Info("Admin notification", zap.String("text", text))
	return nil
}

// TelegramNotifier sends every notification to each admin chat.
type TelegramNotifier struct {
	bot     *telego.Bot
	chatIds []int64
}

func NewTelegramNotifier(cfg models.TelegramConfig, opts ...telego.BotOption) (*TelegramNotifier, error) {
	if len(cfg.AdminChatIds) == 0 {
		return nil, errors.New("telegram notifier needs at least one admin chat id")
	}

	options := append([]telego.BotOption{
		telego.WithDiscardLogger(),
		telego.WithHTTPClient(&http.Client{Timeout: 15 * time.Second}),
	}, opts...)

	bot, err := telego.NewBot(cfg.BotToken, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to create telegram bot: %w", err)
	}

	return &TelegramNotifier{bot: bot, chatIds: cfg.AdminChatIds}, nil
}

// Notify attempts every admin chat even when some fail.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, chatId := range n.chatIds {
		if _, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(chatId), text)); err != nil {
			zap.L().Error("Failed to notify admin",
				zap.Int64("chat_id", chatId),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("chat %d: %w", chatId, err))
		}
	}
	return errors.Join(errs...)
}
