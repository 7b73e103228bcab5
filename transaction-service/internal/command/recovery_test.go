package command

import (
	"context"
	"testing"
	"time"

	"github.com/eaglebank/wallet/shared/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newWorker(f *fixture) *RecoveryWorker {
	return NewRecoveryWorker(f.sagas, f.svc, f.metrics, RecoveryOptions{Interval: 10 * time.Millisecond, BatchSize: 10, Lease: time.Minute}, zap.NewNop())
}

// seedSaga stores a transfer saga from alice to bob as a crashed driver
// would have left it.
func seedSaga(t *testing.T, f *fixture, id string, state models.SagaState) *models.Saga {
	t.Helper()
	saga := &models.Saga{
		TransferID:         id,
		Kind:               models.KindTransfer,
		SenderOwner:        "usr-alice",
		SenderAccount:      "acc-a",
		ReceiverIdentifier: "+15550002",
		ReceiverOwner:      "usr-bob",
		ReceiverAccount:    "acc-b",
		Amount:             decimal.RequireFromString("40.00"),
		State:              state,
		NextRunAt:          time.Now().Add(-time.Second),
		CreatedAt:          time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.sagas.Create(context.Background(), saga))
	return saga
}

func TestSweepFinishesOwedRecord(t *testing.T) {
	f := newFixture(t, testOptions())
	f.history.failures = 1
	result, err := f.svc.Transfer(context.Background(), transferCmd("40.00"))
	require.NoError(t, err)
	require.Equal(t, OutcomeRecordPending, result.Outcome)
	f.sagas.makeDue(result.TransferID)

	n, err := newWorker(f).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	saga, err := f.sagas.Get(context.Background(), result.TransferID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaCompleted, saga.State)
	assert.NotNil(t, f.history.get(result.TransferID))
}

func TestSweepFencesStalePendingSaga(t *testing.T) {
	f := newFixture(t, testOptions())
	saga := seedSaga(t, f, "trf-stale", models.SagaPending)

	_, err := newWorker(f).Sweep(context.Background())
	require.NoError(t, err)

	stored, err := f.sagas.Get(context.Background(), saga.TransferID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaFailed, stored.State)
	assert.Equal(t, "100.00", f.ledger.balance("acc-a"))

	// A debit still in flight from the dead driver bounces off the fence.
	_, err = f.ledger.Debit(context.Background(), "acc-a", saga.Amount, saga.DebitRef())
	assert.Error(t, err)
	assert.Equal(t, "100.00", f.ledger.balance("acc-a"))
}

func TestSweepResumesForwardFromDebited(t *testing.T) {
	f := newFixture(t, testOptions())
	saga := seedSaga(t, f, "trf-debited", models.SagaDebited)
	_, err := f.ledger.Debit(context.Background(), "acc-a", saga.Amount, saga.DebitRef())
	require.NoError(t, err)

	_, err = newWorker(f).Sweep(context.Background())
	require.NoError(t, err)

	stored, err := f.sagas.Get(context.Background(), saga.TransferID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaCompleted, stored.State)
	assert.Equal(t, "60.00", f.ledger.balance("acc-a"))
	assert.Equal(t, "40.00", f.ledger.balance("acc-b"))
}

func TestSweepSkipsLockedSaga(t *testing.T) {
	f := newFixture(t, testOptions())
	saga := seedSaga(t, f, "trf-busy", models.SagaDebited)
	_, err := f.ledger.Debit(context.Background(), "acc-a", saga.Amount, saga.DebitRef())
	require.NoError(t, err)
	require.NoError(t, f.redis.Set(lockKey(saga.TransferID), "live-request"))

	w := newWorker(f)
	_, err = w.Sweep(context.Background())
	require.NoError(t, err)

	stored, err := f.sagas.Get(context.Background(), saga.TransferID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaDebited, stored.State)
	assert.Equal(t, "0.00", f.ledger.balance("acc-b"))

	// Leased: not handed out again right away.
	n, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	f.redis.Del(lockKey(saga.TransferID))
	f.sagas.makeDue(saga.TransferID)
	_, err = w.Sweep(context.Background())
	require.NoError(t, err)
	stored, err = f.sagas.Get(context.Background(), saga.TransferID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaCompleted, stored.State)
}

func TestSweepReportsBacklog(t *testing.T) {
	f := newFixture(t, testOptions())
	f.ledger.inject(&fault{op: "void", err: unreachable})
	seedSaga(t, f, "trf-1", models.SagaDebitUnknown)
	seedSaga(t, f, "trf-2", models.SagaCreditUnknown)

	_, err := newWorker(f).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, f.gauge("wallet_saga_backlog", string(models.SagaDebitUnknown)))
	assert.Equal(t, 1.0, f.gauge("wallet_saga_backlog", string(models.SagaCreditUnknown)))
	assert.Zero(t, f.gauge("wallet_saga_backlog", string(models.SagaCompensating)))
}

func TestRecoveryWorkerStopsOnCancel(t *testing.T) {
	f := newFixture(t, testOptions())
	f.history.failures = 1
	result, err := f.svc.Transfer(context.Background(), transferCmd("40.00"))
	require.NoError(t, err)
	f.sagas.makeDue(result.TransferID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newWorker(f).Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		saga, err := f.sagas.Get(context.Background(), result.TransferID)
		return err == nil && saga.State == models.SagaCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
