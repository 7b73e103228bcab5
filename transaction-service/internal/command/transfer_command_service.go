package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/eaglebank/wallet/shared/cqrs"
	"github.com/eaglebank/wallet/shared/events"
	"github.com/eaglebank/wallet/shared/middleware"
	"github.com/eaglebank/wallet/shared/models"
	"github.com/eaglebank/wallet/shared/utils"
	"github.com/eaglebank/wallet/transaction-service/internal/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerStore is the ledger service as seen by the orchestrator.
type LedgerStore interface {
	GetByOwner(ctx context.Context, ownerID string) (*models.Ledger, error)
	Debit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) (*models.Ledger, error)
	Credit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) (*models.Ledger, error)
	Void(ctx context.Context, reference, accountID string) (*models.LedgerMutation, error)
}

type IdentityResolver interface {
	Resolve(ctx context.Context, identifier string) (string, error)
}

type SagaStore interface {
	Create(ctx context.Context, saga *models.Saga) error
	Get(ctx context.Context, transferID string) (*models.Saga, error)
	GetByIdempotencyKey(ctx context.Context, ownerID, key string) (*models.Saga, error)
	Save(ctx context.Context, saga *models.Saga) error
}

type TransferLedger interface {
	Append(ctx context.Context, record *models.TransferRecord) error
}

type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// Dependencies groups the collaborators of TransferCommandService.
type Dependencies struct {
	Ledgers   LedgerStore
	Identity  IdentityResolver
	Sagas     SagaStore
	History   TransferLedger
	Locker    Locker
	Publisher EventPublisher
	Metrics   *metrics.Metrics
}

type Options struct {
	// InlineCompensationAttempts is how many refunds a live request tries
	// before leaving the saga to the recovery worker.
	InlineCompensationAttempts int
	// MaxCompensationAttempts is the total number of refunds tried before the
	// saga is escalated to an operator.
	MaxCompensationAttempts int
	CompensationBackoff     time.Duration
	// RetryBackoff is the base delay before the recovery worker picks up a
	// saga that could not make progress.
	RetryBackoff time.Duration
	// StaleAfter is how long a saga may sit in a non-terminal state before the
	// recovery worker assumes its driver died.
	StaleAfter time.Duration
}

func DefaultOptions() Options {
	return Options{
		InlineCompensationAttempts: 3,
		MaxCompensationAttempts:    10,
		CompensationBackoff:        100 * time.Millisecond,
		RetryBackoff:               5 * time.Second,
		StaleAfter:                 time.Minute,
	}
}

type Outcome int

const (
	// OutcomeCompleted means money moved and the history record is written.
	OutcomeCompleted Outcome = iota
	// OutcomeRecordPending means money moved but the record is still owed.
	OutcomeRecordPending
	// OutcomeInProgress means the saga has not settled yet.
	OutcomeInProgress
)

// Result is the settled view of a transfer or top-up handed back to callers.
type Result struct {
	TransferID string
	Kind       models.TransferKind
	Outcome    Outcome
	Amount     decimal.Decimal
	AccountID  string
	// NewBalance is set for top-ups when the credited balance is known.
	NewBalance *decimal.Decimal
	CreatedAt  time.Time
}

// TransferCommandService orchestrates money movements between ledgers as
// sagas: every step is persisted before the next ledger mutation is sent, and
// a debited sender is always either matched by a credit or refunded.
type TransferCommandService struct {
	ledgers   LedgerStore
	identity  IdentityResolver
	sagas     SagaStore
	history   TransferLedger
	locker    Locker
	publisher EventPublisher
	metrics   *metrics.Metrics
	opts      Options
	logger    *zap.Logger
}

func NewTransferCommandService(deps Dependencies, opts Options, logger *zap.Logger) *TransferCommandService {
	if opts.InlineCompensationAttempts <= 0 {
		opts.InlineCompensationAttempts = 1
	}
	if opts.MaxCompensationAttempts < opts.InlineCompensationAttempts {
		opts.MaxCompensationAttempts = opts.InlineCompensationAttempts
	}
	return &TransferCommandService{
		ledgers:   deps.Ledgers,
		identity:  deps.Identity,
		sagas:     deps.Sagas,
		history:   deps.History,
		locker:    deps.Locker,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		opts:      opts,
		logger:    logger,
	}
}

// run carries the state of one pass over a saga.
type run struct {
	saga    *models.Saga
	live    bool
	balance *decimal.Decimal
}

func lockKey(transferID string) string { return "saga:" + transferID }

// Transfer moves cmd.Amount from the sender's ledger to the ledger of the
// user registered under cmd.ReceiverIdentifier.
func (s *TransferCommandService) Transfer(ctx context.Context, cmd cqrs.TransferCommand) (*Result, error) {
	matches := func(saga *models.Saga) bool {
		return saga.Kind == models.KindTransfer &&
			saga.Amount.Equal(cmd.Amount) &&
			saga.ReceiverIdentifier == cmd.ReceiverIdentifier &&
			saga.Note == cmd.Note
	}
	previous, err := s.previous(ctx, cmd.SenderOwnerID, cmd.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if previous != nil {
		return s.replay(ctx, previous, matches)
	}

	sender, err := s.ledgers.GetByOwner(ctx, cmd.SenderOwnerID)
	if err != nil {
		return nil, s.reject(models.KindTransfer, ledgerLookupError(err, apperr.ErrSenderLedgerMissing))
	}
	if !middleware.ValidMoney(cmd.Amount) {
		return nil, s.reject(models.KindTransfer, apperr.ErrInvalidAmount)
	}

	receiverOwner, err := s.identity.Resolve(ctx, cmd.ReceiverIdentifier)
	if err != nil {
		return nil, s.reject(models.KindTransfer, err)
	}
	if receiverOwner == cmd.SenderOwnerID {
		return nil, s.reject(models.KindTransfer, apperr.ErrSelfTransfer)
	}

	receiver, err := s.ledgers.GetByOwner(ctx, receiverOwner)
	if err != nil {
		return nil, s.reject(models.KindTransfer, ledgerLookupError(err, apperr.ErrReceiverLedgerMissing))
	}
	if receiver.AccountID == sender.AccountID {
		return nil, s.reject(models.KindTransfer, apperr.ErrSelfTransfer)
	}

	now := time.Now().UTC()
	saga := &models.Saga{
		TransferID:         utils.GenerateID("trf"),
		IdempotencyKey:     cmd.IdempotencyKey,
		Kind:               models.KindTransfer,
		SenderOwner:        cmd.SenderOwnerID,
		SenderAccount:      sender.AccountID,
		ReceiverIdentifier: cmd.ReceiverIdentifier,
		ReceiverOwner:      receiverOwner,
		ReceiverAccount:    receiver.AccountID,
		Amount:             cmd.Amount,
		Note:               cmd.Note,
		State:              models.SagaPending,
		NextRunAt:          now.Add(s.opts.StaleAfter),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return s.start(ctx, saga, matches)
}

// TopUp credits the caller's own ledger.
func (s *TransferCommandService) TopUp(ctx context.Context, cmd cqrs.TopUpCommand) (*Result, error) {
	matches := func(saga *models.Saga) bool {
		return saga.Kind == models.KindTopUp && saga.Amount.Equal(cmd.Amount)
	}
	previous, err := s.previous(ctx, cmd.OwnerID, cmd.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if previous != nil {
		return s.replay(ctx, previous, matches)
	}

	ledger, err := s.ledgers.GetByOwner(ctx, cmd.OwnerID)
	if err != nil {
		return nil, s.reject(models.KindTopUp, ledgerLookupError(err, apperr.ErrSenderLedgerMissing))
	}
	if !middleware.ValidMoney(cmd.Amount) {
		return nil, s.reject(models.KindTopUp, apperr.ErrInvalidAmount)
	}

	now := time.Now().UTC()
	saga := &models.Saga{
		TransferID:      utils.GenerateID("trf"),
		IdempotencyKey:  cmd.IdempotencyKey,
		Kind:            models.KindTopUp,
		SenderOwner:     cmd.OwnerID,
		ReceiverOwner:   cmd.OwnerID,
		ReceiverAccount: ledger.AccountID,
		Amount:          cmd.Amount,
		State:           models.SagaPending,
		NextRunAt:       now.Add(s.opts.StaleAfter),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return s.start(ctx, saga, matches)
}

// Resume drives a persisted saga forward from its stored state. It is used
// by the recovery worker; a saga held by a live request is left alone.
func (s *TransferCommandService) Resume(ctx context.Context, transferID string) error {
	return s.locker.WithLock(ctx, lockKey(transferID), func(ctx context.Context) error {
		saga, err := s.sagas.Get(ctx, transferID)
		if err != nil {
			return err
		}
		if saga.State.Terminal() {
			return nil
		}
		s.drive(ctx, &run{saga: saga})
		return nil
	})
}

// RetrySaga re-arms a saga for immediate recovery. An escalated saga starts
// compensating again with a fresh attempt budget.
func (s *TransferCommandService) RetrySaga(ctx context.Context, cmd cqrs.RetrySagaCommand) (*models.Saga, error) {
	err := s.locker.WithLock(ctx, lockKey(cmd.TransferID), func(ctx context.Context) error {
		saga, err := s.sagas.Get(ctx, cmd.TransferID)
		if err != nil {
			return err
		}
		switch saga.State {
		case models.SagaCompleted, models.SagaFailed:
			return apperr.WithMessage(apperr.ErrInvalidRequest, fmt.Sprintf("saga %s already finished as %s", saga.TransferID, saga.State))
		case models.SagaEscalated:
			saga.State = models.SagaCompensating
			saga.Attempts = 0
		}
		saga.NextRunAt = time.Now().UTC()
		saga.UpdatedAt = saga.NextRunAt
		if err := s.sagas.Save(ctx, saga); err != nil {
			return err
		}
		s.logger.Info("saga re-armed", zap.String("transfer_id", saga.TransferID), zap.String("state", string(saga.State)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.Resume(ctx, cmd.TransferID); err != nil {
		return nil, err
	}
	return s.sagas.Get(ctx, cmd.TransferID)
}

// previous returns the saga created earlier under the same idempotency key,
// or nil when the request is new.
func (s *TransferCommandService) previous(ctx context.Context, ownerID, key string) (*models.Saga, error) {
	if key == "" {
		return nil, nil
	}
	saga, err := s.sagas.GetByIdempotencyKey(ctx, ownerID, key)
	if errors.Is(err, apperr.ErrTransferNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return saga, nil
}

// replay answers a repeated request with the outcome of the original one.
func (s *TransferCommandService) replay(ctx context.Context, saga *models.Saga, matches func(*models.Saga) bool) (*Result, error) {
	if !matches(saga) {
		return nil, apperr.ErrIdempotencyMismatch
	}
	return s.resultFor(ctx, &run{saga: saga})
}

// start persists a new saga under its lock and drives it as far as it goes.
func (s *TransferCommandService) start(ctx context.Context, saga *models.Saga, matches func(*models.Saga) bool) (*Result, error) {
	r := &run{saga: saga, live: true}
	created := false
	err := s.locker.WithLock(ctx, lockKey(saga.TransferID), func(ctx context.Context) error {
		if err := s.sagas.Create(ctx, saga); err != nil {
			return err
		}
		created = true
		s.drive(ctx, r)
		return nil
	})

	if !created {
		switch {
		case errors.Is(err, apperr.ErrIdempotencyKeyExists):
			// A concurrent request with the same key won the race.
			previous, lookupErr := s.previous(ctx, saga.SenderOwner, saga.IdempotencyKey)
			if lookupErr != nil || previous == nil {
				return nil, err
			}
			return s.replay(ctx, previous, matches)
		case apperr.KindOf(err) == apperr.KindInternal:
			s.logger.Warn("saga could not be started", zap.String("transfer_id", saga.TransferID), zap.Error(err))
			return nil, s.reject(saga.Kind, apperr.Wrap(apperr.ErrUnreachable, err))
		default:
			return nil, s.reject(saga.Kind, err)
		}
	}
	return s.resultFor(ctx, r)
}

// drive advances the saga until it settles or cannot make progress. Once
// money may move the run must outlive the request that started it.
func (s *TransferCommandService) drive(ctx context.Context, r *run) {
	ctx = context.WithoutCancel(ctx)
	for !r.saga.State.Terminal() {
		if !s.advance(ctx, r) {
			return
		}
	}
}

// advance executes the step the saga's state calls for and reports whether
// another step may follow immediately.
func (s *TransferCommandService) advance(ctx context.Context, r *run) bool {
	saga := r.saga
	switch saga.State {
	case models.SagaPending:
		if !r.live {
			// The driver died with the first mutation possibly in flight.
			if saga.Kind == models.KindTopUp {
				return s.fenceCredit(ctx, r)
			}
			return s.fenceDebit(ctx, r)
		}
		if saga.Kind == models.KindTopUp {
			return s.credit(ctx, r)
		}
		return s.debit(ctx, r)
	case models.SagaDebitUnknown:
		return s.fenceDebit(ctx, r)
	case models.SagaDebited:
		return s.credit(ctx, r)
	case models.SagaCreditUnknown:
		return s.fenceCredit(ctx, r)
	case models.SagaCompensating:
		return s.compensate(ctx, r)
	case models.SagaCredited:
		return s.record(ctx, r, models.StatusSuccess)
	case models.SagaCompensated:
		return s.record(ctx, r, models.StatusFailed)
	}
	return false
}

func (s *TransferCommandService) debit(ctx context.Context, r *run) bool {
	saga := r.saga
	_, err := s.ledgers.Debit(ctx, saga.SenderAccount, saga.Amount, saga.DebitRef())
	switch {
	case err == nil:
		return s.transition(ctx, r, models.SagaDebited)
	case apperr.IsDefinite(err):
		// Refused by the ledger: nothing moved.
		return s.fail(ctx, r, ledgerLookupError(err, apperr.ErrSenderLedgerMissing))
	default:
		saga.LastError = err.Error()
		return s.transition(ctx, r, models.SagaDebitUnknown)
	}
}

func (s *TransferCommandService) credit(ctx context.Context, r *run) bool {
	saga := r.saga
	ledger, err := s.ledgers.Credit(ctx, saga.ReceiverAccount, saga.Amount, saga.CreditRef())
	switch {
	case err == nil:
		balance := ledger.Balance
		r.balance = &balance
		return s.transition(ctx, r, models.SagaCredited)
	case !apperr.IsDefinite(err):
		saga.LastError = err.Error()
		return s.transition(ctx, r, models.SagaCreditUnknown)
	case saga.Kind == models.KindTopUp:
		return s.fail(ctx, r, ledgerLookupError(err, apperr.ErrSenderLedgerMissing))
	default:
		return s.startCompensation(ctx, r, ledgerLookupError(err, apperr.ErrReceiverLedgerMissing))
	}
}

// fenceDebit settles a debit whose outcome is unknown by voiding its
// reference: either the debit already happened and must be refunded, or it
// can no longer happen. A debit the ledger refused fails with its reason.
func (s *TransferCommandService) fenceDebit(ctx context.Context, r *run) bool {
	saga := r.saga
	mutation, err := s.ledgers.Void(ctx, saga.DebitRef(), saga.SenderAccount)
	switch {
	case apperr.IsDefinite(err):
		return s.escalate(ctx, r, fmt.Errorf("fencing debit: %w", err))
	case err != nil:
		return s.retryLater(ctx, r, err)
	case mutation.Applied():
		return s.startCompensation(ctx, r, apperr.ErrUnreachable)
	case mutation.Type == models.MutationRejected:
		return s.fail(ctx, r, ledgerLookupError(rejectionOf(mutation), apperr.ErrSenderLedgerMissing))
	default:
		return s.fail(ctx, r, apperr.ErrUnreachable)
	}
}

// fenceCredit settles a credit whose outcome is unknown. An applied credit
// completes the transfer; a voided or refused one is compensated.
func (s *TransferCommandService) fenceCredit(ctx context.Context, r *run) bool {
	saga := r.saga
	mutation, err := s.ledgers.Void(ctx, saga.CreditRef(), saga.ReceiverAccount)
	if apperr.IsDefinite(err) {
		return s.escalate(ctx, r, fmt.Errorf("fencing credit: %w", err))
	}
	if err != nil {
		return s.retryLater(ctx, r, err)
	}
	if mutation.Applied() {
		return s.transition(ctx, r, models.SagaCredited)
	}

	cause := error(apperr.ErrUnreachable)
	if mutation.Type == models.MutationRejected {
		cause = rejectionOf(mutation)
	}
	if saga.Kind == models.KindTopUp {
		return s.fail(ctx, r, ledgerLookupError(cause, apperr.ErrSenderLedgerMissing))
	}
	return s.startCompensation(ctx, r, ledgerLookupError(cause, apperr.ErrReceiverLedgerMissing))
}

func (s *TransferCommandService) startCompensation(ctx context.Context, r *run, cause error) bool {
	r.saga.ErrorCode = apperr.CodeOf(cause)
	r.saga.LastError = cause.Error()
	return s.transition(ctx, r, models.SagaCompensating)
}

// compensate refunds the sender under the saga's refund reference. A live
// request tries a few times with backoff; the recovery worker tries once per
// pass until the attempt budget runs out.
func (s *TransferCommandService) compensate(ctx context.Context, r *run) bool {
	saga := r.saga
	tries := 1
	if r.live {
		tries = s.opts.InlineCompensationAttempts
	}

	for i := 0; i < tries; i++ {
		_, err := s.ledgers.Credit(ctx, saga.SenderAccount, saga.Amount, saga.RefundRef())
		if err == nil {
			s.metrics.Compensation(true)
			s.logger.Info("sender refunded", zap.String("transfer_id", saga.TransferID), zap.Int("attempts", saga.Attempts+1))
			return s.transition(ctx, r, models.SagaCompensated)
		}

		s.metrics.Compensation(false)
		saga.Attempts++
		saga.LastError = err.Error()
		s.logger.Warn("refund attempt failed",
			zap.String("transfer_id", saga.TransferID), zap.Int("attempts", saga.Attempts), zap.Error(err))

		if apperr.IsDefinite(err) || saga.Attempts >= s.opts.MaxCompensationAttempts {
			return s.escalate(ctx, r, err)
		}
		if i < tries-1 {
			time.Sleep(s.opts.CompensationBackoff << i)
		}
	}
	return s.retryLater(ctx, r, errors.New(saga.LastError))
}

// record appends the history entry of a settled saga and finishes it.
func (s *TransferCommandService) record(ctx context.Context, r *run, status models.TransferStatus) bool {
	saga := r.saga
	if err := s.history.Append(ctx, saga.Record(status)); err != nil {
		s.logger.Warn("transfer record append failed", zap.String("transfer_id", saga.TransferID), zap.Error(err))
		return s.retryLater(ctx, r, err)
	}

	if status == models.StatusSuccess {
		saga.LastError = ""
		if !s.transition(ctx, r, models.SagaCompleted) {
			return false
		}
		s.metrics.TransferFinished(saga.Kind, "success", saga.CreatedAt)
		s.publish(ctx, events.TransferCompleted, events.TransferCompletedEvent{
			TransferID:      saga.TransferID,
			Kind:            string(saga.Kind),
			SenderAccount:   saga.SenderAccount,
			ReceiverAccount: saga.ReceiverAccount,
			Amount:          saga.Amount.StringFixed(2),
		})
		return false
	}

	if !s.transition(ctx, r, models.SagaFailed) {
		return false
	}
	s.metrics.TransferFinished(saga.Kind, "failed", saga.CreatedAt)
	s.publish(ctx, events.TransferFailed, events.TransferFailedEvent{
		TransferID:  saga.TransferID,
		Kind:        string(saga.Kind),
		Code:        saga.ErrorCode,
		Compensated: true,
	})
	return false
}

// fail finishes a saga in which no money moved. No history record is kept.
func (s *TransferCommandService) fail(ctx context.Context, r *run, cause error) bool {
	saga := r.saga
	saga.ErrorCode = apperr.CodeOf(cause)
	saga.LastError = cause.Error()
	s.transition(ctx, r, models.SagaFailed)
	s.metrics.TransferFinished(saga.Kind, "failed", saga.CreatedAt)
	s.publish(ctx, events.TransferFailed, events.TransferFailedEvent{
		TransferID: saga.TransferID,
		Kind:       string(saga.Kind),
		Code:       saga.ErrorCode,
	})
	return false
}

// escalate hands the saga to an operator. The sender stays debited until
// someone re-arms the saga.
func (s *TransferCommandService) escalate(ctx context.Context, r *run, cause error) bool {
	saga := r.saga
	saga.LastError = cause.Error()
	s.transition(ctx, r, models.SagaEscalated)

	s.metrics.Escalated()
	s.logger.Error("compensation escalated",
		zap.String("transfer_id", saga.TransferID),
		zap.String("sender_account", saga.SenderAccount),
		zap.String("amount", saga.Amount.StringFixed(2)),
		zap.Int("attempts", saga.Attempts),
		zap.Error(cause))
	s.publish(ctx, events.CompensationEscalated, events.CompensationEscalatedEvent{
		TransferID:    saga.TransferID,
		SenderAccount: saga.SenderAccount,
		Amount:        saga.Amount.StringFixed(2),
		Attempts:      saga.Attempts,
		LastError:     saga.LastError,
	})
	return false
}

// retryLater parks the saga for the recovery worker.
func (s *TransferCommandService) retryLater(ctx context.Context, r *run, cause error) bool {
	saga := r.saga
	now := time.Now().UTC()
	saga.LastError = cause.Error()
	saga.NextRunAt = now.Add(s.backoff(saga.Attempts))
	saga.UpdatedAt = now
	if err := s.sagas.Save(ctx, saga); err != nil {
		s.logger.Warn("failed to park saga", zap.String("transfer_id", saga.TransferID), zap.Error(err))
	}
	return false
}

func (s *TransferCommandService) backoff(attempts int) time.Duration {
	if attempts > 6 {
		attempts = 6
	}
	return s.opts.RetryBackoff << attempts
}

// transition persists the saga in its next state. When the write fails the
// run halts; the recovery worker continues from the last persisted state.
func (s *TransferCommandService) transition(ctx context.Context, r *run, state models.SagaState) bool {
	saga := r.saga
	now := time.Now().UTC()
	saga.State = state
	saga.UpdatedAt = now
	saga.NextRunAt = now.Add(s.opts.StaleAfter)
	if err := s.sagas.Save(ctx, saga); err != nil {
		s.logger.Warn("failed to persist saga state",
			zap.String("transfer_id", saga.TransferID), zap.String("state", string(state)), zap.Error(err))
		return false
	}
	return true
}

// resultFor derives the caller-facing outcome from the saga's state.
func (s *TransferCommandService) resultFor(ctx context.Context, r *run) (*Result, error) {
	saga := r.saga
	result := &Result{
		TransferID: saga.TransferID,
		Kind:       saga.Kind,
		Amount:     saga.Amount,
		AccountID:  saga.ReceiverAccount,
		CreatedAt:  saga.CreatedAt,
		NewBalance: r.balance,
	}

	switch saga.State {
	case models.SagaCompleted:
		result.Outcome = OutcomeCompleted
	case models.SagaCredited:
		result.Outcome = OutcomeRecordPending
	case models.SagaFailed, models.SagaCompensated:
		return nil, apperr.FromCode(saga.ErrorCode, "", http.StatusInternalServerError)
	default:
		result.Outcome = OutcomeInProgress
		return result, nil
	}

	if saga.Kind == models.KindTopUp && result.NewBalance == nil {
		if ledger, err := s.ledgers.GetByOwner(ctx, saga.ReceiverOwner); err == nil {
			result.NewBalance = &ledger.Balance
		}
	}
	return result, nil
}

// reject reports a request that was refused before any money could move.
func (s *TransferCommandService) reject(kind models.TransferKind, err error) error {
	s.metrics.TransferFinished(kind, "rejected", time.Now())
	return err
}

func (s *TransferCommandService) publish(ctx context.Context, eventType string, data any) {
	if err := s.publisher.Publish(ctx, events.TransferEventsStream, eventType, data); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}

// rejectionOf rebuilds the error a ledger refused a mutation with.
func rejectionOf(m *models.LedgerMutation) error {
	return apperr.FromCode(m.Reason, "", http.StatusConflict)
}

// ledgerLookupError names which ledger was missing.
func ledgerLookupError(err error, missing *apperr.Error) error {
	if apperr.KindOf(err) == apperr.KindNotFound {
		return missing
	}
	return err
}
