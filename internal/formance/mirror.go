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

package formance

import (
	"context"
	"fmt"

	"invest-ledger-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Platform accounts on the other side of every user posting.
const (
	accountDeposits    = "platform:deposits"
	accountWithdrawals = "platform:withdrawals"
	accountFees        = "platform:fees"
	accountReferrals   = "platform:referrals"
	accountTrading     = "platform:trading"
)

// Money entering a user account. The platform side may run negative.
const numscriptCredit = `vars {
  asset $asset
  number $amount
  account $source
  account $user
  string $tx_type
  string $user_id
  string $related_user
  string $notes
  string $amount_human
}

send [$asset $amount] (
  source = @$source allowing unbounded overdraft
  destination = @$user
)

set_tx_meta("event_type", "ledger_mirror")
set_tx_meta("tx_type", $tx_type)
set_tx_meta("user_id", $user_id)
set_tx_meta("related_user", $related_user)
set_tx_meta("notes", $notes)
set_tx_meta("amount_human", $amount_human)
`

// Money leaving a user account. The local ledger already enforced the
// balance check, so the mirror never rejects on funds.
const numscriptDebit = `vars {
  asset $asset
  number $amount
  account $user
  account $destination
  string $tx_type
  string $user_id
  string $related_user
  string $notes
  string $amount_human
}

send [$asset $amount] (
  source = @$user allowing unbounded overdraft
  destination = @$destination
)

set_tx_meta("event_type", "ledger_mirror")
set_tx_meta("tx_type", $tx_type)
set_tx_meta("user_id", $user_id)
set_tx_meta("related_user", $related_user)
set_tx_meta("notes", $notes)
set_tx_meta("amount_human", $amount_human)
`

type posting struct {
	script       string
	counterparty string
}

// postingFor picks the script and platform account for a transaction. Only
// ADJUSTMENT changes direction with its sign.
func postingFor(tx models.Transaction) (posting, error) {
	switch tx.Type {
	case models.TxDeposit:
		return posting{numscriptCredit, accountDeposits}, nil
	case models.TxReferral:
		return posting{numscriptCredit, accountReferrals}, nil
	case models.TxWithdrawal:
		return posting{numscriptDebit, accountWithdrawals}, nil
	case models.TxFee:
		return posting{numscriptDebit, accountFees}, nil
	case models.TxAdjustment:
		if tx.Amount.IsNegative() {
			return posting{numscriptDebit, accountTrading}, nil
		}
		return posting{numscriptCredit, accountTrading}, nil
	default:
		return posting{}, fmt.Errorf("no mirror posting for transaction type %q", tx.Type)
	}
}

func userAccount(userId string) string { return "users:" + userId }

// mirrorVars builds the Numscript variables for one transaction.
func (s *Service) mirrorVars(tx models.Transaction, p posting) map[string]string {
	amount := tx.Amount.Abs()
	vars := map[string]string{
		"asset":        formanceAsset(s.asset),
		"amount":       amount.Shift(int32(precisionFor(s.asset))).BigInt().String(),
		"user":         userAccount(tx.UserId),
		"tx_type":      string(tx.Type),
		"user_id":      tx.UserId,
		"related_user": tx.RelatedUser,
		"notes":        tx.Notes,
		"amount_human": amount.String(),
	}
	if p.script == numscriptCredit {
		vars["source"] = p.counterparty
	} else {
		vars["destination"] = p.counterparty
	}
	return vars
}

// MirrorTransaction posts one COMPLETED entry to the Formance ledger, using
// the transaction id as the reference. A reference already present means the
// entry was mirrored before and is not an error.
func (s *Service) MirrorTransaction(ctx context.Context, tx models.Transaction) error {
	if tx.Status != models.StatusCompleted {
		return fmt.Errorf("only completed transactions are mirrored, %s is %s", tx.Id, tx.Status)
	}
	if tx.Amount.IsZero() {
		zap.L().Debug("Skipping zero amount mirror", zap.String("tx_id", tx.Id))
		return nil
	}

	p, err := postingFor(tx)
	if err != nil {
		return err
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(tx.Id),
		Script: &shared.V2PostTransactionScript{
			Plain: p.script,
			Vars:  s.mirrorVars(tx, p),
		},
	}
	if !tx.Timestamp.IsZero() {
		ts := tx.Timestamp
		postTx.Timestamp = &ts
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Transaction already mirrored", zap.String("tx_id", tx.Id))
			return nil
		}
		return fmt.Errorf("error mirroring %s %s: %w", tx.Type, tx.Id, err)
	}

	zap.L().Info("Transaction mirrored to Formance",
		zap.String("tx_id", tx.Id),
		zap.String("user_id", tx.UserId),
		zap.String("type", string(tx.Type)),
		zap.String("amount", tx.Amount.String()))
	return nil
}
