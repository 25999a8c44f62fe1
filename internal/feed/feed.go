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

	"invest-ledger-go/internal/models"
)

// Source is the external profit feed read by the distributor.
type Source interface {
	FetchClosedTrades(ctx context.Context) ([]models.ClosedTrade, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context) ([]models.ClosedTrade, error)

func (f SourceFunc) FetchClosedTrades(ctx context.Context) ([]models.ClosedTrade, error) {
	return f(ctx)
}
