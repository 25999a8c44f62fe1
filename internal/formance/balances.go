package formance

import (
	"context"
	"fmt"
	"math/big"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Balance returns the mirrored balance of a user in the configured asset.
// An account the mirror has never seen has a zero balance.
func (s *Service) Balance(ctx context.Context, userId string) (decimal.Decimal, error) {
	zap.L().Debug("Getting mirrored balance from Formance", zap.String("user_id", userId))

	vols, err := s.getAccountVolumes(ctx, userAccount(userId))
	if err != nil {
		return decimal.Zero, err
	}
	if bal := volumeBalance(vols, formanceAsset(s.asset)); bal != nil {
		return bigIntToDecimal(bal, s.asset), nil
	}
	return decimal.Zero, nil
}

// ---------- helpers ----------

// getAccountVolumes fetches volumes for a single account via GetAccount (clean GET).
func (s *Service) getAccountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		zap.L().Warn("Failed to get account volumes", zap.String("address", address), zap.Error(err))
		return nil, fmt.Errorf("error getting volumes for %s: %w", address, err)
	}
	return resp.V2AccountResponse.Data.Volumes, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a *big.Int in smallest-unit to a human-readable decimal.
func bigIntToDecimal(raw *big.Int, symbol string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(symbol)))
}
