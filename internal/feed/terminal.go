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

package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"invest-ledger-go/internal/models"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"
)

// Terminal command codes understood by the expert advisor bridge.
const (
	cmdOpenPositions   = 9
	cmdClosedPositions = 10
)

// TerminalClient talks to a trading terminal bridge over a ZeroMQ REQ
// socket. Every request opens its own socket so a timed-out exchange never
// leaves the REQ state machine stuck between send and receive.
type TerminalClient struct {
	endpoint string
}

var _ Source = (*TerminalClient)(nil)

func NewTerminalClient(endpoint string) (*TerminalClient, error) {
	if endpoint == "" {
		return nil, errors.New("terminal endpoint cannot be empty")
	}
	return &TerminalClient{endpoint: endpoint}, nil
}

// FetchClosedTrades returns every closed position the terminal reports.
func (c *TerminalClient) FetchClosedTrades(ctx context.Context) ([]models.ClosedTrade, error) {
	reply, err := c.request(ctx, cmdClosedPositions, "")
	if err != nil {
		return nil, err
	}

	trades, err := ParseClosedTrades(strings.NewReader(reply))
	if err != nil {
		return nil, err
	}

	zap.L().Info("Fetched closed positions from terminal",
		zap.String("endpoint", c.endpoint),
		zap.Int("count", len(trades)))
	return trades, nil
}

// FetchOpenPositions returns positions still open on the terminal.
func (c *TerminalClient) FetchOpenPositions(ctx context.Context) ([]models.OpenPosition, error) {
	reply, err := c.request(ctx, cmdOpenPositions, "")
	if err != nil {
		return nil, err
	}
	return ParseOpenPositions(strings.NewReader(reply))
}

func (c *TerminalClient) request(ctx context.Context, command int, args string) (string, error) {
	socket := zmq4.NewReq(ctx)
	defer func() {
		if err := socket.Close(); err != nil {
			zap.L().Debug("Failed to close terminal socket", zap.Error(err))
		}
	}()

	if err := socket.Dial(c.endpoint); err != nil {
		return "", fmt.Errorf("unable to dial terminal %s: %w", c.endpoint, err)
	}

	msg := fmt.Sprintf("%d^%s", command, args)
	if err := socket.Send(zmq4.NewMsgString(msg)); err != nil {
		return "", fmt.Errorf("unable to send %q to terminal: %w", msg, err)
	}

	type result struct {
		msg zmq4.Msg
		err error
	}
	replies := make(chan result, 1)
	go func() {
		m, err := socket.Recv()
		replies <- result{msg: m, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("terminal did not reply to %q: %w", msg, ctx.Err())
	case r := <-replies:
		if r.err != nil {
			return "", fmt.Errorf("unable to read terminal reply: %w", r.err)
		}
		if len(r.msg.Frames) == 0 {
			return "", nil
		}
		return string(r.msg.Frames[0]), nil
	}
}
