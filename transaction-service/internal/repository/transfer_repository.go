package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eaglebank/wallet/shared/models"
)

const transferColumns = `transfer_id, sender_account, receiver_account, amount, kind, status, note, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*models.TransferRecord, error) {
	var r models.TransferRecord
	if err := row.Scan(&r.TransferID, &r.SenderAccount, &r.ReceiverAccount, &r.Amount, &r.Kind, &r.Status, &r.Note, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// TransferWriteRepository appends to the transfer history. It operates
// exclusively against the PostgreSQL write store; records are never updated.
type TransferWriteRepository struct {
	db *sql.DB
}

func NewTransferWriteRepository(db *sql.DB) *TransferWriteRepository {
	return &TransferWriteRepository{db: db}
}

// Append stores record once. Appending a transfer id that already exists is
// a no-op, so the saga can retry the append after a lost reply.
func (r *TransferWriteRepository) Append(ctx context.Context, record *models.TransferRecord) error {
	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transfer_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		record.TransferID, record.SenderAccount, record.ReceiverAccount,
		record.Amount, record.Kind, record.Status, record.Note, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append transfer %s: %w", record.TransferID, err)
	}
	return nil
}
