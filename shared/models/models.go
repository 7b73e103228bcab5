package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerStatus string

const (
	LedgerActive LedgerStatus = "active"
	LedgerClosed LedgerStatus = "closed"
)

// Ledger is the balance record of one account. Balance is never negative and
// a closed ledger always holds zero.
type Ledger struct {
	AccountID string
	OwnerID   string
	Balance   decimal.Decimal
	Status    LedgerStatus
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type MutationType string

const (
	MutationDebit  MutationType = "debit"
	MutationCredit MutationType = "credit"
	// MutationVoid fences a reference so a late debit or credit carrying it
	// is rejected instead of applied.
	MutationVoid MutationType = "void"
	// MutationRejected keeps the answer given to a debit or credit the
	// ledger refused, so a fence or a replay reports the same reason.
	MutationRejected MutationType = "rejected"
)

type LedgerMutation struct {
	Reference    string
	AccountID    string
	Type         MutationType
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	// Reason is the error code of a rejected mutation.
	Reason    string
	CreatedAt time.Time
}

// Applied reports whether the mutation moved money.
func (m *LedgerMutation) Applied() bool {
	return m.Type == MutationDebit || m.Type == MutationCredit
}

type TransferKind string

const (
	KindTransfer TransferKind = "transfer"
	KindTopUp    TransferKind = "topup"
)

type TransferStatus string

const (
	StatusPending TransferStatus = "pending"
	StatusSuccess TransferStatus = "success"
	StatusFailed  TransferStatus = "failed"
)

// TransferRecord is an append-only history entry. SenderAccount is empty for
// top-ups.
type TransferRecord struct {
	TransferID      string
	SenderAccount   string
	ReceiverAccount string
	Amount          decimal.Decimal
	Kind            TransferKind
	Status          TransferStatus
	Note            string
	CreatedAt       time.Time
}

// Involves reports whether accountID took part in the transfer.
func (r *TransferRecord) Involves(accountID string) bool {
	return accountID != "" && (r.SenderAccount == accountID || r.ReceiverAccount == accountID)
}

type SagaState string

const (
	SagaPending       SagaState = "pending"
	SagaDebitUnknown  SagaState = "debit_unknown"
	SagaDebited       SagaState = "debited"
	SagaCreditUnknown SagaState = "credit_unknown"
	SagaCredited      SagaState = "credited"
	SagaCompensating  SagaState = "compensating"
	SagaCompensated   SagaState = "compensated"
	SagaCompleted     SagaState = "completed"
	SagaFailed        SagaState = "failed"
	SagaEscalated     SagaState = "escalated"
)

// Terminal reports whether no further step will run for the saga without
// operator action.
func (s SagaState) Terminal() bool {
	switch s {
	case SagaCompleted, SagaFailed, SagaEscalated:
		return true
	}
	return false
}

// Saga is the durable in-flight marker of one money movement.
type Saga struct {
	TransferID         string
	IdempotencyKey     string
	Kind               TransferKind
	SenderOwner        string
	SenderAccount      string
	ReceiverIdentifier string
	ReceiverOwner      string
	ReceiverAccount    string
	Amount             decimal.Decimal
	Note               string
	State              SagaState
	Attempts           int
	NextRunAt          time.Time
	LastError          string
	ErrorCode          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (s *Saga) DebitRef() string  { return s.TransferID + ":debit" }
func (s *Saga) CreditRef() string { return s.TransferID + ":credit" }
func (s *Saga) RefundRef() string { return s.TransferID + ":refund" }

// Record builds the history entry for the saga with the given status.
func (s *Saga) Record(status TransferStatus) *TransferRecord {
	return &TransferRecord{
		TransferID:      s.TransferID,
		SenderAccount:   s.SenderAccount,
		ReceiverAccount: s.ReceiverAccount,
		Amount:          s.Amount,
		Kind:            s.Kind,
		Status:          status,
		Note:            s.Note,
		CreatedAt:       s.CreatedAt,
	}
}
