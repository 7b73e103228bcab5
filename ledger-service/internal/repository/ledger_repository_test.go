package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/eaglebank/wallet/shared/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ledgerCols   = []string{"account_id", "owner_id", "balance", "status", "version", "created_at", "updated_at"}
	mutationCols = []string{"reference", "account_id", "type", "amount", "balance_after", "reason", "created_at"}
	now          = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func ledgerRow(accountID, balance, status string) *sqlmock.Rows {
	return sqlmock.NewRows(ledgerCols).AddRow(accountID, "usr-1", balance, status, 3, now, now)
}

func mutationRow(reference, accountID, typ, amount, after string) *sqlmock.Rows {
	return sqlmock.NewRows(mutationCols).AddRow(reference, accountID, typ, amount, after, "", now)
}

func rejectedRow(reference, accountID, reason string) *sqlmock.Rows {
	return sqlmock.NewRows(mutationCols).AddRow(reference, accountID, "rejected", "40.00", "0", reason, now)
}

func TestCreateDuplicateActiveLedger(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerWriteRepository(db)

	mock.ExpectExec("INSERT INTO ledgers").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "ledgers_one_active_per_owner"})

	err := repo.Create(context.Background(), &models.Ledger{AccountID: "acc-1", OwnerID: "usr-1", Status: models.LedgerActive})
	assert.ErrorIs(t, err, apperr.ErrDuplicateLedger)
}

func TestDebitApplied(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerWriteRepository(db)
	amount := decimal.RequireFromString("40.00")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_mutations").
		WithArgs("trf-1:debit", "acc-a", models.MutationDebit, amount).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE ledgers SET balance = balance - \$2,.* AND balance >= \$2 RETURNING`).
		WithArgs("acc-a", amount).
		WillReturnRows(ledgerRow("acc-a", "60.00", "active"))
	mock.ExpectQuery("UPDATE ledger_mutations SET balance_after").
		WillReturnRows(mutationRow("trf-1:debit", "acc-a", "debit", "40.00", "60.00"))
	mock.ExpectCommit()

	res, err := repo.Debit(context.Background(), "acc-a", amount, "trf-1:debit")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, "60.00", res.Ledger.Balance.StringFixed(2))
	assert.Equal(t, "60.00", res.Mutation.BalanceAfter.StringFixed(2))
}

func TestCreditHasNoBalanceGuard(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerWriteRepository(db)
	amount := decimal.RequireFromString("40.00")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_mutations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE ledgers SET balance = balance \+ \$2,.* WHERE account_id = \$1 AND status = 'active' RETURNING`).
		WillReturnRows(ledgerRow("acc-b", "40.00", "active"))
	mock.ExpectQuery("UPDATE ledger_mutations SET balance_after").
		WillReturnRows(mutationRow("trf-1:credit", "acc-b", "credit", "40.00", "40.00"))
	mock.ExpectCommit()

	res, err := repo.Credit(context.Background(), "acc-b", amount, "trf-1:credit")
	require.NoError(t, err)
	assert.Equal(t, "40.00", res.Ledger.Balance.StringFixed(2))
}

func TestDebitRejections(t *testing.T) {
	tests := []struct {
		name    string
		status  *sqlmock.Rows
		wantErr *apperr.Error
	}{
		{"insufficient funds", sqlmock.NewRows([]string{"status"}).AddRow("active"), apperr.ErrInsufficientFunds},
		{"closed ledger", sqlmock.NewRows([]string{"status"}).AddRow("closed"), apperr.ErrLedgerClosed},
		{"unknown ledger", sqlmock.NewRows([]string{"status"}), apperr.ErrLedgerNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewLedgerWriteRepository(db)

			mock.ExpectBegin()
			mock.ExpectExec("INSERT INTO ledger_mutations").WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectQuery("UPDATE ledgers").WillReturnRows(sqlmock.NewRows(ledgerCols))
			mock.ExpectQuery("SELECT status FROM ledgers").WithArgs("acc-a").WillReturnRows(tt.status)
			mock.ExpectExec("UPDATE ledger_mutations SET type = 'rejected'").
				WithArgs("trf-2:debit", tt.wantErr.Code).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			_, err := repo.Debit(context.Background(), "acc-a", decimal.RequireFromString("50.00"), "trf-2:debit")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDebitReplayReturnsOriginalOutcome(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerWriteRepository(db)
	amount := decimal.RequireFromString("40.00")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_mutations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM ledger_mutations WHERE reference").
		WithArgs("trf-1:debit").
		WillReturnRows(mutationRow("trf-1:debit", "acc-a", "debit", "40.00", "60.00"))
	mock.ExpectQuery("FROM ledgers WHERE account_id").
		WillReturnRows(ledgerRow("acc-a", "60.00", "active"))
	mock.ExpectCommit()

	res, err := repo.Debit(context.Background(), "acc-a", amount, "trf-1:debit")
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, "60.00", res.Ledger.Balance.StringFixed(2))
}

func TestDebitReplayConflicts(t *testing.T) {
	tests := []struct {
		name    string
		row     *sqlmock.Rows
		wantErr error
	}{
		{"voided reference", mutationRow("trf-1:debit", "acc-a", "void", "0", "0"), apperr.ErrMutationVoided},
		{"rejected reference keeps its reason", rejectedRow("trf-1:debit", "acc-a", "INSUFFICIENT_FUNDS"), apperr.ErrInsufficientFunds},
		{"different amount", mutationRow("trf-1:debit", "acc-a", "debit", "10.00", "90.00"), apperr.ErrReferenceReused},
		{"different account", mutationRow("trf-1:debit", "acc-z", "debit", "40.00", "60.00"), apperr.ErrReferenceReused},
		{"credit under debit reference", mutationRow("trf-1:debit", "acc-a", "credit", "40.00", "140.00"), apperr.ErrReferenceReused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewLedgerWriteRepository(db)

			mock.ExpectBegin()
			mock.ExpectExec("INSERT INTO ledger_mutations").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("FROM ledger_mutations WHERE reference").WillReturnRows(tt.row)
			mock.ExpectRollback()

			_, err := repo.Debit(context.Background(), "acc-a", decimal.RequireFromString("40.00"), "trf-1:debit")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCloseRequiresZeroBalance(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerWriteRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("usr-1").WillReturnRows(ledgerRow("acc-a", "0.01", "active"))
	mock.ExpectRollback()

	_, err := repo.Close(context.Background(), "usr-1")
	assert.ErrorIs(t, err, apperr.ErrNonZeroBalance)
}

func TestCloseEmptyLedger(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerWriteRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("usr-1").WillReturnRows(ledgerRow("acc-a", "0.00", "active"))
	mock.ExpectQuery("SELECT COUNT").WithArgs("acc-a").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("UPDATE ledgers SET status = 'closed'").WithArgs("acc-a").
		WillReturnRows(ledgerRow("acc-a", "0.00", "closed"))
	mock.ExpectCommit()

	ledger, err := repo.Close(context.Background(), "usr-1")
	require.NoError(t, err)
	assert.Equal(t, models.LedgerClosed, ledger.Status)
}

func TestCloseRejectedWhileTransferInFlight(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerWriteRepository(db)

	// Drained by a transfer debit whose credit and refund are both missing.
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("usr-1").WillReturnRows(ledgerRow("acc-a", "0.00", "active"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM ledger_mutations d.*':debit'.*':credit'.*':refund'`).
		WithArgs("acc-a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Close(context.Background(), "usr-1")
	assert.ErrorIs(t, err, apperr.ErrTransferInFlight)
}

func TestCloseUnknownOwner(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerWriteRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows(ledgerCols))
	mock.ExpectRollback()

	_, err := repo.Close(context.Background(), "usr-404")
	assert.ErrorIs(t, err, apperr.ErrLedgerNotFound)
}

func TestVoidReturnsExistingMutation(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerWriteRepository(db)

	mock.ExpectExec("INSERT INTO ledger_mutations .* 'void'").
		WithArgs("trf-1:debit", "acc-a").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM ledger_mutations WHERE reference").
		WillReturnRows(mutationRow("trf-1:debit", "acc-a", "debit", "40.00", "60.00"))

	m, err := repo.Void(context.Background(), "trf-1:debit", "acc-a")
	require.NoError(t, err)
	assert.True(t, m.Applied())
}

func TestVoidRejectsReferenceOfAnotherAccount(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerWriteRepository(db)

	mock.ExpectExec("INSERT INTO ledger_mutations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM ledger_mutations WHERE reference").
		WillReturnRows(mutationRow("trf-1:debit", "acc-a", "debit", "40.00", "60.00"))

	_, err := repo.Void(context.Background(), "trf-1:debit", "acc-z")
	assert.ErrorIs(t, err, apperr.ErrReferenceReused)
}

func TestVoidReportsRejectedReference(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerWriteRepository(db)

	mock.ExpectExec("INSERT INTO ledger_mutations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM ledger_mutations WHERE reference").
		WillReturnRows(rejectedRow("trf-1:debit", "acc-a", "INSUFFICIENT_FUNDS"))

	m, err := repo.Void(context.Background(), "trf-1:debit", "acc-a")
	require.NoError(t, err)
	assert.False(t, m.Applied())
	assert.Equal(t, models.MutationRejected, m.Type)
	assert.Equal(t, "INSUFFICIENT_FUNDS", m.Reason)
}

func TestVoidFencesUnusedReference(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerWriteRepository(db)

	mock.ExpectExec("INSERT INTO ledger_mutations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM ledger_mutations WHERE reference").
		WillReturnRows(mutationRow("trf-1:credit", "acc-b", "void", "0", "0"))

	m, err := repo.Void(context.Background(), "trf-1:credit", "acc-b")
	require.NoError(t, err)
	assert.False(t, m.Applied())
	assert.Equal(t, models.MutationVoid, m.Type)
}

func TestReadRepositoryNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerReadRepository(db)

	mock.ExpectQuery("WHERE owner_id = \\$1 AND status = 'active'").WithArgs("usr-9").
		WillReturnRows(sqlmock.NewRows(ledgerCols))
	mock.ExpectQuery("FROM ledgers WHERE account_id").WithArgs("acc-9").
		WillReturnRows(sqlmock.NewRows(ledgerCols))
	mock.ExpectQuery("FROM ledger_mutations WHERE reference").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(mutationCols))

	ctx := context.Background()
	_, err := repo.GetByOwner(ctx, "usr-9")
	assert.ErrorIs(t, err, apperr.ErrLedgerNotFound)
	_, err = repo.GetByAccountID(ctx, "acc-9")
	assert.ErrorIs(t, err, apperr.ErrLedgerNotFound)
	_, err = repo.GetMutation(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrMutationNotFound)
}

func TestReadRepositoryGetByOwner(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLedgerReadRepository(db)

	mock.ExpectQuery("WHERE owner_id").WillReturnRows(ledgerRow("acc-a", "100.00", "active"))

	ledger, err := repo.GetByOwner(context.Background(), "usr-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-a", ledger.AccountID)
	assert.True(t, ledger.Balance.Equal(decimal.NewFromInt(100)))
}
