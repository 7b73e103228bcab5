package query

import (
	"context"

	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/eaglebank/wallet/shared/cqrs"
	"github.com/eaglebank/wallet/shared/models"
)

// LedgerLookup resolves the caller's account on the ledger service.
type LedgerLookup interface {
	GetByOwner(ctx context.Context, ownerID string) (*models.Ledger, error)
}

type TransferReader interface {
	GetByID(ctx context.Context, transferID string) (*models.TransferRecord, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.TransferRecord, error)
}

type SagaReader interface {
	ListByState(ctx context.Context, state models.SagaState, limit int) ([]*models.Saga, error)
}

const defaultSagaLimit = 100

// TransferQueryService serves transfer history reads. Callers only ever see
// transfers their own account took part in.
type TransferQueryService struct {
	ledgers  LedgerLookup
	readRepo TransferReader
	sagas    SagaReader
}

func NewTransferQueryService(ledgers LedgerLookup, readRepo TransferReader, sagas SagaReader) *TransferQueryService {
	return &TransferQueryService{ledgers: ledgers, readRepo: readRepo, sagas: sagas}
}

// ListTransfers returns the caller's history, most recent first.
func (s *TransferQueryService) ListTransfers(ctx context.Context, q cqrs.ListTransfersQuery) ([]models.TransferView, error) {
	ledger, err := s.ledgers.GetByOwner(ctx, q.OwnerID)
	if err != nil {
		return nil, err
	}
	records, err := s.readRepo.ListByAccount(ctx, ledger.AccountID)
	if err != nil {
		return nil, err
	}
	views := make([]models.TransferView, len(records))
	for i, r := range records {
		views[i] = models.NewTransferView(r)
	}
	return views, nil
}

func (s *TransferQueryService) GetTransfer(ctx context.Context, q cqrs.GetTransferQuery) (*models.TransferView, error) {
	record, err := s.readRepo.GetByID(ctx, q.TransferID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.ledgers.GetByOwner(ctx, q.OwnerID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.ErrForbidden
		}
		return nil, err
	}
	if !record.Involves(ledger.AccountID) {
		return nil, apperr.ErrForbidden
	}
	view := models.NewTransferView(record)
	return &view, nil
}

// ListSagas returns unfinished sagas, or those in q.State when set.
func (s *TransferQueryService) ListSagas(ctx context.Context, q cqrs.ListSagasQuery) ([]models.SagaView, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSagaLimit
	}
	sagas, err := s.sagas.ListByState(ctx, models.SagaState(q.State), limit)
	if err != nil {
		return nil, err
	}
	views := make([]models.SagaView, len(sagas))
	for i, saga := range sagas {
		views[i] = models.NewSagaView(saga)
	}
	return views, nil
}
