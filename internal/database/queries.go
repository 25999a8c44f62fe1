package database

const (
	// Account queries
	accountColumns = `
		user_id, balance, locked, total_deposits, total_withdrawals, total_interest,
		referral_id, referrer_id, referral_count, referral_earnings,
		first_deposit, first_deposit_date, first_deposit_amount, last_profit_date,
		version, created_at, updated_at`

	queryGetAccount = `
		SELECT` + accountColumns + `
		FROM accounts
		WHERE user_id = ?`

	queryListAccounts = `
		SELECT` + accountColumns + `
		FROM accounts
		ORDER BY user_id`

	queryFindReferrer = `
		SELECT user_id
		FROM accounts
		WHERE referral_id = ? OR user_id = ?
		ORDER BY CASE WHEN referral_id = ? THEN 0 ELSE 1 END
		LIMIT 1`

	queryInsertAccount = `
		INSERT INTO accounts (user_id, referral_id, referrer_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`

	queryIncrementReferralCount = `
		UPDATE accounts
		SET referral_count = referral_count + 1, version = version + 1, updated_at = ?
		WHERE user_id = ?`

	queryUpdateAccount = `
		UPDATE accounts
		SET balance = ?, locked = ?, total_deposits = ?, total_withdrawals = ?, total_interest = ?,
		    referral_count = ?, referral_earnings = ?,
		    first_deposit = ?, first_deposit_date = ?, first_deposit_amount = ?, last_profit_date = ?,
		    version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?`

	// Transaction log queries
	transactionColumns = `
		tx_id, timestamp, user_id, tx_type, amount, status, address, related_user, notes, updated_at`

	queryCheckDuplicateTransaction = `
		SELECT tx_id FROM transactions WHERE tx_id = ? LIMIT 1`

	queryInsertTransaction = `
		INSERT INTO transactions (tx_id, timestamp, user_id, tx_type, amount, status, address, related_user, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransaction = `
		SELECT` + transactionColumns + `
		FROM transactions
		WHERE tx_id = ?`

	queryUpdateTransactionStatus = `
		UPDATE transactions
		SET status = ?, notes = ?, updated_at = ?
		WHERE tx_id = ? AND status = ?`

	queryListUserTransactions = `
		SELECT` + transactionColumns + `
		FROM transactions
		WHERE user_id = ? AND (? = '' OR tx_type = ?)
		ORDER BY seq DESC
		LIMIT ?`

	queryCompletedTransactions = `
		SELECT user_id, tx_type, amount
		FROM transactions
		WHERE status = 'COMPLETED'`

	// Processed trade queries
	queryInsertProcessedTrade = `
		INSERT OR IGNORE INTO processed_trades (trade_id, processed_at) VALUES (?, ?)`

	queryCountProcessedTrades = `
		SELECT COUNT(*) FROM processed_trades`

	// Cooldown queries
	queryGetCooldown = `
		SELECT user_id, last_withdrawal_date, withdrawals_this_month
		FROM withdrawal_cooldowns
		WHERE user_id = ?`

	queryUpsertCooldown = `
		INSERT INTO withdrawal_cooldowns (user_id, last_withdrawal_date, withdrawals_this_month)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			last_withdrawal_date = excluded.last_withdrawal_date,
			withdrawals_this_month = excluded.withdrawals_this_month`
)
