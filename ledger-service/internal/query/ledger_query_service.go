package query

import (
	"context"

	"github.com/eaglebank/wallet/shared/cqrs"
	"github.com/eaglebank/wallet/shared/models"
)

type LedgerReader interface {
	GetByOwner(ctx context.Context, ownerID string) (*models.Ledger, error)
	GetByAccountID(ctx context.Context, accountID string) (*models.Ledger, error)
	GetMutation(ctx context.Context, reference string) (*models.LedgerMutation, error)
}

type LedgerQueryService struct {
	readRepo LedgerReader
}

func NewLedgerQueryService(readRepo LedgerReader) *LedgerQueryService {
	return &LedgerQueryService{readRepo: readRepo}
}

func (s *LedgerQueryService) GetLedgerByOwner(ctx context.Context, q cqrs.GetLedgerByOwnerQuery) (*models.LedgerView, error) {
	ledger, err := s.readRepo.GetByOwner(ctx, q.OwnerID)
	if err != nil {
		return nil, err
	}
	view := models.NewLedgerView(ledger)
	return &view, nil
}

func (s *LedgerQueryService) GetLedger(ctx context.Context, q cqrs.GetLedgerQuery) (*models.LedgerView, error) {
	ledger, err := s.readRepo.GetByAccountID(ctx, q.AccountID)
	if err != nil {
		return nil, err
	}
	view := models.NewLedgerView(ledger)
	return &view, nil
}

func (s *LedgerQueryService) GetMutation(ctx context.Context, q cqrs.GetMutationQuery) (*models.MutationView, error) {
	mutation, err := s.readRepo.GetMutation(ctx, q.Reference)
	if err != nil {
		return nil, err
	}
	view := models.NewMutationView(mutation)
	return &view, nil
}
