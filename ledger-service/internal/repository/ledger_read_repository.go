package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/eaglebank/wallet/shared/models"
)

const (
	ledgerColumns   = `account_id, owner_id, balance, status, version, created_at, updated_at`
	mutationColumns = `reference, account_id, type, amount, balance_after, reason, created_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedger(row rowScanner) (*models.Ledger, error) {
	var l models.Ledger
	if err := row.Scan(&l.AccountID, &l.OwnerID, &l.Balance, &l.Status, &l.Version, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanMutation(row rowScanner) (*models.LedgerMutation, error) {
	var m models.LedgerMutation
	if err := row.Scan(&m.Reference, &m.AccountID, &m.Type, &m.Amount, &m.BalanceAfter, &m.Reason, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// LedgerReadRepository handles read operations for ledgers. Balances are
// always read from PostgreSQL; a cached balance could hand the transfer
// orchestrator a stale figure.
type LedgerReadRepository struct {
	db *sql.DB
}

func NewLedgerReadRepository(db *sql.DB) *LedgerReadRepository {
	return &LedgerReadRepository{db: db}
}

// GetByOwner returns the active ledger of an owner.
func (r *LedgerReadRepository) GetByOwner(ctx context.Context, ownerID string) (*models.Ledger, error) {
	ledger, err := scanLedger(r.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledgers WHERE owner_id = $1 AND status = 'active'`, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	return ledger, nil
}

// GetByAccountID returns a ledger whatever its status.
func (r *LedgerReadRepository) GetByAccountID(ctx context.Context, accountID string) (*models.Ledger, error) {
	ledger, err := scanLedger(r.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledgers WHERE account_id = $1`, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	return ledger, nil
}

func (r *LedgerReadRepository) GetMutation(ctx context.Context, reference string) (*models.LedgerMutation, error) {
	mutation, err := scanMutation(r.db.QueryRowContext(ctx,
		`SELECT `+mutationColumns+` FROM ledger_mutations WHERE reference = $1`, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrMutationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mutation: %w", err)
	}
	return mutation, nil
}
