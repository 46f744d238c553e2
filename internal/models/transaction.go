package models

import "time"

// TransactionEvent is one bank ledger entry from the transaction history
// provider. Amounts are signed integer cents: positive is a credit/deposit,
// negative is a debit/withdrawal. BalanceAfterCents is the provider-reported
// balance after the event and may be absent.
type TransactionEvent struct {
	Timestamp         time.Time `json:"timestamp"`
	AmountCents       int64     `json:"amount_cents"`
	BalanceAfterCents *int64    `json:"balance_after_cents,omitempty"`
	NSF               bool      `json:"nsf"`
}
