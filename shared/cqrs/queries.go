package cqrs

// ---------- Ledger queries ----------

// GetLedgerByOwnerQuery fetches the active ledger of an owner.
type GetLedgerByOwnerQuery struct {
	OwnerID string
}

type GetLedgerQuery struct {
	AccountID string
}

type GetMutationQuery struct {
	Reference string
}

// ---------- Transfer queries ----------

// ListTransfersQuery fetches the history of the caller's account, most
// recent first.
type ListTransfersQuery struct {
	OwnerID string
}

// GetTransferQuery fetches a single transfer, subject to a participant check.
type GetTransferQuery struct {
	TransferID string
	OwnerID    string
}

type ListSagasQuery struct {
	State string
	Limit int
}
