package distributor

import (
	"fmt"
	"time"

	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

// Shares splits total across accounts with a positive balance in proportion
// to that balance. Each share is rounded to cents and the rounding residue
// goes to the largest balance, so the shares always sum to total exactly.
func Shares(accounts []models.Account, total decimal.Decimal) (map[string]decimal.Decimal, decimal.Decimal, error) {
	totalBalances := decimal.Zero
	largest := -1
	for i, a := range accounts {
		if !a.Balance.IsPositive() {
			continue
		}
		totalBalances = totalBalances.Add(a.Balance)
		if largest < 0 || a.Balance.GreaterThan(accounts[largest].Balance) {
			largest = i
		}
	}
	if totalBalances.IsZero() {
		return nil, decimal.Zero, errNoBalances
	}

	shares := make(map[string]decimal.Decimal)
	allocated := decimal.Zero
	for _, a := range accounts {
		if !a.Balance.IsPositive() {
			continue
		}
		share := a.Balance.Mul(total).Div(totalBalances).Round(2)
		shares[a.UserId] = share
		allocated = allocated.Add(share)
	}

	if residue := total.Sub(allocated); !residue.IsZero() {
		id := accounts[largest].UserId
		shares[id] = shares[id].Add(residue)
	}

	return shares, totalBalances, nil
}

// applyShare credits (or debits) one account. A loss larger than the balance
// fails the whole cycle; a loss that cuts into locked funds shrinks the lock.
func applyShare(a models.Account, share decimal.Decimal, now time.Time) (models.Account, error) {
	next := a.Balance.Add(share)
	if next.IsNegative() {
		return a, fmt.Errorf("%w: loss share %s exceeds balance %s of %s",
			store.ErrInsufficientBalance, share.String(), a.Balance.String(), a.UserId)
	}

	a.Balance = next
	a.TotalInterest = a.TotalInterest.Add(share)
	a.LastProfitDate = now
	if a.Locked.GreaterThan(a.Balance) {
		a.Locked = a.Balance
	}
	return a, nil
}
