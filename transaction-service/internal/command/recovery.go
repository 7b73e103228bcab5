package command

import (
	"context"
	"errors"
	"time"

	"github.com/eaglebank/wallet/shared/models"
	sharedredis "github.com/eaglebank/wallet/shared/redis"
	"github.com/eaglebank/wallet/transaction-service/internal/metrics"
	"go.uber.org/zap"
)

// SagaQueue hands out sagas that are due for another pass.
type SagaQueue interface {
	ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*models.Saga, error)
	CountByState(ctx context.Context) (map[models.SagaState]int, error)
}

type Resumer interface {
	Resume(ctx context.Context, transferID string) error
}

type RecoveryOptions struct {
	Interval  time.Duration
	BatchSize int
	// Lease is how long a claimed saga stays invisible to other workers.
	Lease time.Duration
}

// RecoveryWorker finishes sagas whose driver gave up or died: it fences
// mutations with unknown outcome, resumes forward from debited, retries
// refunds and re-appends owed history records.
type RecoveryWorker struct {
	queue   SagaQueue
	resumer Resumer
	metrics *metrics.Metrics
	opts    RecoveryOptions
	logger  *zap.Logger
}

func NewRecoveryWorker(queue SagaQueue, resumer Resumer, m *metrics.Metrics, opts RecoveryOptions, logger *zap.Logger) *RecoveryWorker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Lease <= 0 {
		opts.Lease = time.Minute
	}
	return &RecoveryWorker{
		queue:   queue,
		resumer: resumer,
		metrics: m,
		opts:    opts,
		logger:  logger.With(zap.String("component", "saga-recovery")),
	}
}

// Start sweeps every Interval until ctx is cancelled.
func (w *RecoveryWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	w.logger.Info("recovery worker started", zap.Duration("interval", w.opts.Interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("recovery worker stopped")
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("recovery sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one pass and reports how many sagas it picked up.
func (w *RecoveryWorker) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	sagas, err := w.queue.ClaimDue(ctx, now, now.Add(w.opts.Lease), w.opts.BatchSize)
	if err != nil {
		return 0, err
	}

	for _, saga := range sagas {
		err := w.resumer.Resume(ctx, saga.TransferID)
		switch {
		case err == nil:
		case errors.Is(err, sharedredis.ErrLockHeld):
			w.logger.Debug("saga busy, skipping", zap.String("transfer_id", saga.TransferID))
		default:
			w.logger.Warn("saga recovery failed",
				zap.String("transfer_id", saga.TransferID), zap.String("state", string(saga.State)), zap.Error(err))
		}
	}

	counts, err := w.queue.CountByState(ctx)
	if err != nil {
		w.logger.Warn("failed to count sagas", zap.Error(err))
	} else {
		w.metrics.SetBacklog(counts)
	}
	return len(sagas), nil
}
