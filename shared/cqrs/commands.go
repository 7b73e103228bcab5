package cqrs

import "github.com/shopspring/decimal"

// ---------- Ledger commands ----------

type CreateLedgerCommand struct {
	OwnerID string
}

// MutateBalanceCommand debits or credits one ledger. Reference makes the
// mutation idempotent: replaying it returns the original outcome.
type MutateBalanceCommand struct {
	AccountID string
	Amount    decimal.Decimal
	Reference string
}

type VoidMutationCommand struct {
	Reference string
	AccountID string
}

type CloseLedgerCommand struct {
	OwnerID string
}

// ---------- Transfer commands ----------

type TransferCommand struct {
	SenderOwnerID      string
	ReceiverIdentifier string
	Amount             decimal.Decimal
	Note               string
	IdempotencyKey     string
}

type TopUpCommand struct {
	OwnerID        string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// RetrySagaCommand re-arms an escalated saga for the recovery worker.
type RetrySagaCommand struct {
	TransferID string
}
