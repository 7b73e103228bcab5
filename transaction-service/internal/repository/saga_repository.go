package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/eaglebank/wallet/shared/database"
	"github.com/eaglebank/wallet/shared/models"
)

const sagaColumns = `transfer_id, idempotency_key, kind, sender_owner, sender_account, receiver_identifier,
	receiver_owner, receiver_account, amount, note, state, attempts, next_run_at, last_error, error_code,
	created_at, updated_at`

// terminalStates is the SQL list of states the recovery worker never picks up.
const terminalStates = `('completed', 'failed', 'escalated')`

func scanSaga(row rowScanner) (*models.Saga, error) {
	var (
		s   models.Saga
		key sql.NullString
	)
	if err := row.Scan(
		&s.TransferID, &key, &s.Kind, &s.SenderOwner, &s.SenderAccount, &s.ReceiverIdentifier,
		&s.ReceiverOwner, &s.ReceiverAccount, &s.Amount, &s.Note, &s.State, &s.Attempts, &s.NextRunAt,
		&s.LastError, &s.ErrorCode, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.IdempotencyKey = key.String
	return &s, nil
}

// SagaRepository persists the in-flight state of transfers and top-ups.
type SagaRepository struct {
	db *sql.DB
}

func NewSagaRepository(db *sql.DB) *SagaRepository {
	return &SagaRepository{db: db}
}

// Create stores a new saga. A second saga for the same owner and idempotency
// key is rejected with ErrIdempotencyKeyExists.
func (r *SagaRepository) Create(ctx context.Context, s *models.Saga) error {
	query := `
		INSERT INTO transfer_sagas (` + sagaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.TransferID, nullString(s.IdempotencyKey), s.Kind, s.SenderOwner, s.SenderAccount, s.ReceiverIdentifier,
		s.ReceiverOwner, s.ReceiverAccount, s.Amount, s.Note, s.State, s.Attempts, s.NextRunAt,
		s.LastError, s.ErrorCode, s.CreatedAt, s.UpdatedAt,
	)
	if database.IsUniqueViolation(err, "transfer_sagas_idempotency") {
		return apperr.ErrIdempotencyKeyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create saga: %w", err)
	}
	return nil
}

func (r *SagaRepository) Get(ctx context.Context, transferID string) (*models.Saga, error) {
	saga, err := scanSaga(r.db.QueryRowContext(ctx,
		`SELECT `+sagaColumns+` FROM transfer_sagas WHERE transfer_id = $1`, transferID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get saga: %w", err)
	}
	return saga, nil
}

func (r *SagaRepository) GetByIdempotencyKey(ctx context.Context, ownerID, key string) (*models.Saga, error) {
	saga, err := scanSaga(r.db.QueryRowContext(ctx,
		`SELECT `+sagaColumns+` FROM transfer_sagas WHERE sender_owner = $1 AND idempotency_key = $2`, ownerID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get saga: %w", err)
	}
	return saga, nil
}

// Save writes the mutable part of a saga: its state and retry bookkeeping.
func (r *SagaRepository) Save(ctx context.Context, s *models.Saga) error {
	query := `
		UPDATE transfer_sagas
		SET state = $2, attempts = $3, next_run_at = $4, last_error = $5, error_code = $6, updated_at = $7
		WHERE transfer_id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		s.TransferID, s.State, s.Attempts, s.NextRunAt, s.LastError, s.ErrorCode, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save saga %s: %w", s.TransferID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.ErrTransferNotFound
	}
	return nil
}

// ClaimDue hands out up to limit non-terminal sagas whose next_run_at has
// passed and pushes their next_run_at to leaseUntil, so concurrent workers
// never claim the same row twice.
func (r *SagaRepository) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*models.Saga, error) {
	query := `
		UPDATE transfer_sagas SET next_run_at = $2
		WHERE transfer_id IN (
			SELECT transfer_id FROM transfer_sagas
			WHERE state NOT IN ` + terminalStates + ` AND next_run_at <= $1
			ORDER BY next_run_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + sagaColumns
	rows, err := r.db.QueryContext(ctx, query, now, leaseUntil, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim sagas: %w", err)
	}
	return collectSagas(rows)
}

// ListByState returns sagas in the given state, oldest first. An empty state
// lists every non-terminal saga.
func (r *SagaRepository) ListByState(ctx context.Context, state models.SagaState, limit int) ([]*models.Saga, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if state == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+sagaColumns+` FROM transfer_sagas WHERE state NOT IN `+terminalStates+` ORDER BY created_at LIMIT $1`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+sagaColumns+` FROM transfer_sagas WHERE state = $1 ORDER BY created_at LIMIT $2`, state, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sagas: %w", err)
	}
	return collectSagas(rows)
}

// CountByState reports how many sagas sit in each non-terminal state plus
// escalated.
func (r *SagaRepository) CountByState(ctx context.Context) (map[models.SagaState]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM transfer_sagas WHERE state NOT IN ('completed', 'failed') GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sagas: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.SagaState]int)
	for rows.Next() {
		var (
			state models.SagaState
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan saga count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

func collectSagas(rows *sql.Rows) ([]*models.Saga, error) {
	defer rows.Close()

	sagas := make([]*models.Saga, 0)
	for rows.Next() {
		saga, err := scanSaga(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saga: %w", err)
		}
		sagas = append(sagas, saga)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sagas: %w", err)
	}
	return sagas, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
