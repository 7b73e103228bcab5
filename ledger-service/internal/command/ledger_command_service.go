package command

import (
	"context"
	"time"

	"github.com/eaglebank/wallet/ledger-service/internal/repository"
	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/eaglebank/wallet/shared/cqrs"
	"github.com/eaglebank/wallet/shared/events"
	"github.com/eaglebank/wallet/shared/middleware"
	"github.com/eaglebank/wallet/shared/models"
	"github.com/eaglebank/wallet/shared/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerWriter is the write store used by LedgerCommandService.
type LedgerWriter interface {
	Create(ctx context.Context, ledger *models.Ledger) error
	Debit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) (*repository.MutationResult, error)
	Credit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) (*repository.MutationResult, error)
	Close(ctx context.Context, ownerID string) (*models.Ledger, error)
	Void(ctx context.Context, reference, accountID string) (*models.LedgerMutation, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// LedgerCommandService applies balance mutations and announces them on the
// ledger event stream.
type LedgerCommandService struct {
	writeRepo LedgerWriter
	publisher EventPublisher
	logger    *zap.Logger
}

func NewLedgerCommandService(writeRepo LedgerWriter, publisher EventPublisher, logger *zap.Logger) *LedgerCommandService {
	return &LedgerCommandService{
		writeRepo: writeRepo,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *LedgerCommandService) CreateLedger(ctx context.Context, cmd cqrs.CreateLedgerCommand) (*models.Ledger, error) {
	if cmd.OwnerID == "" {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "owner_id is required")
	}

	now := time.Now().UTC()
	ledger := &models.Ledger{
		AccountID: utils.GenerateID("acc"),
		OwnerID:   cmd.OwnerID,
		Balance:   decimal.Zero,
		Status:    models.LedgerActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.writeRepo.Create(ctx, ledger); err != nil {
		return nil, err
	}

	s.publish(ctx, events.LedgerCreated, events.LedgerCreatedEvent{
		AccountID: ledger.AccountID,
		OwnerID:   ledger.OwnerID,
	})
	s.logger.Info("ledger created", zap.String("account_id", ledger.AccountID), zap.String("owner_id", ledger.OwnerID))
	return ledger, nil
}

func (s *LedgerCommandService) Debit(ctx context.Context, cmd cqrs.MutateBalanceCommand) (*models.Ledger, error) {
	if err := validateMutation(cmd); err != nil {
		return nil, err
	}
	res, err := s.writeRepo.Debit(ctx, cmd.AccountID, cmd.Amount, cmd.Reference)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, res)
	return res.Ledger, nil
}

func (s *LedgerCommandService) Credit(ctx context.Context, cmd cqrs.MutateBalanceCommand) (*models.Ledger, error) {
	if err := validateMutation(cmd); err != nil {
		return nil, err
	}
	res, err := s.writeRepo.Credit(ctx, cmd.AccountID, cmd.Amount, cmd.Reference)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, res)
	return res.Ledger, nil
}

func (s *LedgerCommandService) Void(ctx context.Context, cmd cqrs.VoidMutationCommand) (*models.LedgerMutation, error) {
	if cmd.Reference == "" || cmd.AccountID == "" {
		return nil, apperr.WithMessage(apperr.ErrInvalidRequest, "reference and account_id are required")
	}
	mutation, err := s.writeRepo.Void(ctx, cmd.Reference, cmd.AccountID)
	if err != nil {
		return nil, err
	}
	if !mutation.Applied() {
		s.logger.Info("mutation reference voided", zap.String("reference", cmd.Reference), zap.String("account_id", cmd.AccountID))
	}
	return mutation, nil
}

func (s *LedgerCommandService) CloseLedger(ctx context.Context, cmd cqrs.CloseLedgerCommand) (*models.Ledger, error) {
	ledger, err := s.writeRepo.Close(ctx, cmd.OwnerID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.LedgerClosed, events.LedgerClosedEvent{
		AccountID: ledger.AccountID,
		OwnerID:   ledger.OwnerID,
	})
	s.logger.Info("ledger closed", zap.String("account_id", ledger.AccountID))
	return ledger, nil
}

func validateMutation(cmd cqrs.MutateBalanceCommand) error {
	if !middleware.ValidMoney(cmd.Amount) {
		return apperr.ErrInvalidAmount
	}
	if cmd.Reference == "" {
		return apperr.WithMessage(apperr.ErrInvalidRequest, "reference is required")
	}
	return nil
}

// announce publishes balance.updated for a freshly applied mutation. Replays
// changed nothing and stay silent.
func (s *LedgerCommandService) announce(ctx context.Context, res *repository.MutationResult) {
	if res.Replayed {
		s.logger.Debug("mutation replayed", zap.String("reference", res.Mutation.Reference))
		return
	}
	s.publish(ctx, events.BalanceUpdated, events.BalanceUpdatedEvent{
		AccountID:  res.Ledger.AccountID,
		Reference:  res.Mutation.Reference,
		Type:       string(res.Mutation.Type),
		Change:     res.Mutation.Amount.StringFixed(2),
		NewBalance: res.Ledger.Balance.StringFixed(2),
	})
}

// publish never fails the mutation: the balance is committed already and the
// stream is informational.
func (s *LedgerCommandService) publish(ctx context.Context, eventType string, data any) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), events.LedgerEventsStream, eventType, data); err != nil {
		s.logger.Warn("failed to publish ledger event", zap.String("type", eventType), zap.Error(err))
	}
}
