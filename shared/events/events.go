package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	UserUpdated = "user.updated"
	UserDeleted = "user.deleted"

	LedgerCreated  = "ledger.created"
	BalanceUpdated = "balance.updated"
	LedgerClosed   = "ledger.closed"

	TransferCompleted     = "transfer.completed"
	TransferFailed        = "transfer.failed"
	CompensationEscalated = "compensation.escalated"
)

// Stream names
const (
	UserEventsStream     = "user.events"
	LedgerEventsStream   = "ledger.events"
	TransferEventsStream = "transfer.events"
)

// Event is the envelope written to every stream. ID lets consumers drop
// duplicates after a reclaim.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Decode converts the untyped payload of a received event into v.
func (e Event) Decode(v any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to re-encode %s payload: %w", e.Type, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// User events, published by the user directory.
type UserUpdatedEvent struct {
	UserID              string `json:"userId"`
	PhoneNumber         string `json:"phoneNumber"`
	PreviousPhoneNumber string `json:"previousPhoneNumber,omitempty"`
}

type UserDeletedEvent struct {
	UserID      string `json:"userId"`
	PhoneNumber string `json:"phoneNumber"`
}

// Ledger events
type LedgerCreatedEvent struct {
	AccountID string `json:"accountId"`
	OwnerID   string `json:"ownerId"`
}

type BalanceUpdatedEvent struct {
	AccountID  string `json:"accountId"`
	Reference  string `json:"reference"`
	Type       string `json:"type"`
	Change     string `json:"change"`
	NewBalance string `json:"newBalance"`
}

type LedgerClosedEvent struct {
	AccountID string `json:"accountId"`
	OwnerID   string `json:"ownerId"`
}

// Transfer events
type TransferCompletedEvent struct {
	TransferID      string `json:"transferId"`
	Kind            string `json:"kind"`
	SenderAccount   string `json:"senderAccount,omitempty"`
	ReceiverAccount string `json:"receiverAccount"`
	Amount          string `json:"amount"`
}

type TransferFailedEvent struct {
	TransferID  string `json:"transferId"`
	Kind        string `json:"kind"`
	Code        string `json:"code"`
	Compensated bool   `json:"compensated"`
}

// CompensationEscalatedEvent is raised when a debited sender could not be
// refunded automatically and an operator has to step in.
type CompensationEscalatedEvent struct {
	TransferID    string `json:"transferId"`
	SenderAccount string `json:"senderAccount"`
	Amount        string `json:"amount"`
	Attempts      int    `json:"attempts"`
	LastError     string `json:"lastError"`
}
