package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/eaglebank/wallet/shared/database"
	"github.com/eaglebank/wallet/shared/models"
	"github.com/shopspring/decimal"
)

const activeOwnerIndex = "ledgers_one_active_per_owner"

// MutationResult is the outcome of a debit or credit. Replayed is set when
// the reference had already been applied and nothing changed.
type MutationResult struct {
	Ledger   *models.Ledger
	Mutation *models.LedgerMutation
	Replayed bool
}

// LedgerWriteRepository handles all state-mutating operations for ledgers.
// Every balance change is a single conditional UPDATE, so concurrent
// mutations of one account are serialized by its row lock.
type LedgerWriteRepository struct {
	db *sql.DB
}

func NewLedgerWriteRepository(db *sql.DB) *LedgerWriteRepository {
	return &LedgerWriteRepository{db: db}
}

func (r *LedgerWriteRepository) Create(ctx context.Context, ledger *models.Ledger) error {
	query := `
		INSERT INTO ledgers (account_id, owner_id, balance, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		ledger.AccountID, ledger.OwnerID, ledger.Balance, ledger.Status,
		ledger.Version, ledger.CreatedAt, ledger.UpdatedAt,
	)
	if database.IsUniqueViolation(err, activeOwnerIndex) {
		return apperr.ErrDuplicateLedger
	}
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	return nil
}

func (r *LedgerWriteRepository) Debit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) (*MutationResult, error) {
	return r.mutate(ctx, models.MutationDebit, accountID, amount, reference)
}

func (r *LedgerWriteRepository) Credit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) (*MutationResult, error) {
	return r.mutate(ctx, models.MutationCredit, accountID, amount, reference)
}

func (r *LedgerWriteRepository) mutate(ctx context.Context, typ models.MutationType, accountID string, amount decimal.Decimal, reference string) (*MutationResult, error) {
	var (
		result   *MutationResult
		rejected *apperr.Error
	)
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		// Claim the reference first. A concurrent claim of the same reference
		// blocks here until the other transaction finishes.
		claim, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_mutations (reference, account_id, type, amount)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (reference) DO NOTHING
		`, reference, accountID, typ, amount)
		if err != nil {
			return fmt.Errorf("failed to claim mutation reference: %w", err)
		}
		claimed, err := claim.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if claimed == 0 {
			result, err = replay(ctx, tx, typ, accountID, amount, reference)
			return err
		}

		var balanceExpr, guard string
		if typ == models.MutationDebit {
			balanceExpr, guard = "balance - $2", "AND balance >= $2"
		} else {
			balanceExpr = "balance + $2"
		}
		ledger, err := scanLedger(tx.QueryRowContext(ctx, `
			UPDATE ledgers
			SET balance = `+balanceExpr+`, version = version + 1, updated_at = NOW()
			WHERE account_id = $1 AND status = 'active' `+guard+`
			RETURNING `+ledgerColumns,
			accountID, amount,
		))
		if errors.Is(err, sql.ErrNoRows) {
			if rejected, err = explainRejection(ctx, tx, accountID); err != nil {
				return err
			}
			// The claim is kept so the reference answers with the same
			// rejection from now on.
			_, err = tx.ExecContext(ctx, `
				UPDATE ledger_mutations SET type = 'rejected', reason = $2
				WHERE reference = $1
			`, reference, rejected.Code)
			if err != nil {
				return fmt.Errorf("failed to record rejected %s: %w", typ, err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to apply %s: %w", typ, err)
		}

		mutation, err := scanMutation(tx.QueryRowContext(ctx, `
			UPDATE ledger_mutations SET balance_after = $2
			WHERE reference = $1
			RETURNING `+mutationColumns,
			reference, ledger.Balance,
		))
		if err != nil {
			return fmt.Errorf("failed to record mutation: %w", err)
		}

		result = &MutationResult{Ledger: ledger, Mutation: mutation}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return nil, rejected
	}
	return result, nil
}

// replay answers a mutation whose reference is already taken.
func replay(ctx context.Context, tx *sql.Tx, typ models.MutationType, accountID string, amount decimal.Decimal, reference string) (*MutationResult, error) {
	mutation, err := scanMutation(tx.QueryRowContext(ctx,
		`SELECT `+mutationColumns+` FROM ledger_mutations WHERE reference = $1`, reference))
	if err != nil {
		return nil, fmt.Errorf("failed to load mutation %s: %w", reference, err)
	}
	switch mutation.Type {
	case models.MutationVoid:
		return nil, apperr.ErrMutationVoided
	case models.MutationRejected:
		return nil, rejection(mutation)
	}
	if mutation.Type != typ || mutation.AccountID != accountID || !mutation.Amount.Equal(amount) {
		return nil, apperr.ErrReferenceReused
	}

	ledger, err := scanLedger(tx.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledgers WHERE account_id = $1`, accountID))
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger %s: %w", accountID, err)
	}
	return &MutationResult{Ledger: ledger, Mutation: mutation, Replayed: true}, nil
}

// explainRejection tells apart the reasons a conditional update touched no
// row.
func explainRejection(ctx context.Context, tx *sql.Tx, accountID string) (*apperr.Error, error) {
	var status models.LedgerStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM ledgers WHERE account_id = $1`, accountID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrLedgerNotFound, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect ledger: %w", err)
	}
	if status != models.LedgerActive {
		return apperr.ErrLedgerClosed, nil
	}
	return apperr.ErrInsufficientFunds, nil
}

func rejection(m *models.LedgerMutation) error {
	return apperr.FromCode(m.Reason, "", http.StatusConflict)
}

// openTransferLegs counts debits on an account that belong to a transfer
// (reference "<transfer>:debit") for which neither the matching credit nor
// the refund has been applied yet.
const openTransferLegs = `
	SELECT COUNT(*) FROM ledger_mutations d
	WHERE d.account_id = $1
	  AND d.type = 'debit'
	  AND d.reference LIKE '%:debit'
	  AND NOT EXISTS (
		SELECT 1 FROM ledger_mutations s
		WHERE s.type = 'credit'
		  AND s.reference IN (left(d.reference, -6) || ':credit', left(d.reference, -6) || ':refund')
	  )
`

// Close closes the active ledger of an owner. Only an empty ledger with no
// unsettled transfer debit closes: a refund owed to it must still land.
func (r *LedgerWriteRepository) Close(ctx context.Context, ownerID string) (*models.Ledger, error) {
	var closed *models.Ledger
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		ledger, err := scanLedger(tx.QueryRowContext(ctx, `
			SELECT `+ledgerColumns+` FROM ledgers
			WHERE owner_id = $1 AND status = 'active'
			FOR UPDATE
		`, ownerID))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrLedgerNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock ledger: %w", err)
		}
		if !ledger.Balance.IsZero() {
			return apperr.ErrNonZeroBalance
		}
		var open int
		if err := tx.QueryRowContext(ctx, openTransferLegs, ledger.AccountID).Scan(&open); err != nil {
			return fmt.Errorf("failed to check open transfers: %w", err)
		}
		if open > 0 {
			return apperr.ErrTransferInFlight
		}

		closed, err = scanLedger(tx.QueryRowContext(ctx, `
			UPDATE ledgers SET status = 'closed', version = version + 1, updated_at = NOW()
			WHERE account_id = $1
			RETURNING `+ledgerColumns,
			ledger.AccountID,
		))
		if err != nil {
			return fmt.Errorf("failed to close ledger: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// Void fences reference. If a debit or credit already claimed it, that
// mutation is returned unchanged; otherwise a void claim is recorded so the
// reference can never be applied later. A reference claimed on another
// account is ErrReferenceReused.
func (r *LedgerWriteRepository) Void(ctx context.Context, reference, accountID string) (*models.LedgerMutation, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_mutations (reference, account_id, type)
		VALUES ($1, $2, 'void')
		ON CONFLICT (reference) DO NOTHING
	`, reference, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to void mutation: %w", err)
	}

	mutation, err := scanMutation(r.db.QueryRowContext(ctx,
		`SELECT `+mutationColumns+` FROM ledger_mutations WHERE reference = $1`, reference))
	if err != nil {
		return nil, fmt.Errorf("failed to load mutation %s: %w", reference, err)
	}
	if mutation.AccountID != accountID {
		return nil, apperr.ErrReferenceReused
	}
	return mutation, nil
}
