package models

import "time"

// Amounts cross the wire as fixed two-place strings so no client ever sees a
// float.

type LedgerView struct {
	AccountID string    `json:"account_id"`
	OwnerID   string    `json:"owner_id"`
	Balance   string    `json:"balance"`
	Status    string    `json:"status"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewLedgerView(l *Ledger) LedgerView {
	return LedgerView{
		AccountID: l.AccountID,
		OwnerID:   l.OwnerID,
		Balance:   l.Balance.StringFixed(2),
		Status:    string(l.Status),
		Version:   l.Version,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

type MutationView struct {
	Reference    string    `json:"reference"`
	AccountID    string    `json:"account_id"`
	Type         string    `json:"type"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewMutationView(m *LedgerMutation) MutationView {
	return MutationView{
		Reference:    m.Reference,
		AccountID:    m.AccountID,
		Type:         string(m.Type),
		Amount:       m.Amount.StringFixed(2),
		BalanceAfter: m.BalanceAfter.StringFixed(2),
		Reason:       m.Reason,
		CreatedAt:    m.CreatedAt,
	}
}

// TransferView is the public projection of a TransferRecord.
type TransferView struct {
	TransferID      string    `json:"transfer_id"`
	SenderAccount   string    `json:"sender_account,omitempty"`
	ReceiverAccount string    `json:"receiver_account"`
	Amount          string    `json:"amount"`
	Kind            string    `json:"kind"`
	Status          string    `json:"status"`
	Note            string    `json:"note,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewTransferView(r *TransferRecord) TransferView {
	return TransferView{
		TransferID:      r.TransferID,
		SenderAccount:   r.SenderAccount,
		ReceiverAccount: r.ReceiverAccount,
		Amount:          r.Amount.StringFixed(2),
		Kind:            string(r.Kind),
		Status:          string(r.Status),
		Note:            r.Note,
		CreatedAt:       r.CreatedAt,
	}
}

// TransferResultView answers POST /transfers. RecordPending is set when the
// money moved but the history record has not been written yet.
type TransferResultView struct {
	TransferID    string    `json:"transfer_id"`
	Status        string    `json:"status"`
	Amount        string    `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
	RecordPending bool      `json:"record_pending,omitempty"`
}

type TopUpView struct {
	TransferID    string `json:"transfer_id"`
	AccountID     string `json:"account_id"`
	NewBalance    string `json:"new_balance"`
	Status        string `json:"status,omitempty"`
	RecordPending bool   `json:"record_pending,omitempty"`
}

type SagaView struct {
	TransferID      string    `json:"transfer_id"`
	Kind            string    `json:"kind"`
	State           string    `json:"state"`
	SenderAccount   string    `json:"sender_account,omitempty"`
	ReceiverAccount string    `json:"receiver_account,omitempty"`
	Amount          string    `json:"amount"`
	Attempts        int       `json:"attempts"`
	LastError       string    `json:"last_error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func NewSagaView(s *Saga) SagaView {
	return SagaView{
		TransferID:      s.TransferID,
		Kind:            string(s.Kind),
		State:           string(s.State),
		SenderAccount:   s.SenderAccount,
		ReceiverAccount: s.ReceiverAccount,
		Amount:          s.Amount.StringFixed(2),
		Attempts:        s.Attempts,
		LastError:       s.LastError,
		UpdatedAt:       s.UpdatedAt,
	}
}
