package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/eaglebank/wallet/shared/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerClient talks to the ledger service's collaborator API.
type LedgerClient struct {
	t *transport
}

func NewLedgerClient(baseURL string, timeout time.Duration, bs BreakerSettings, logger *zap.Logger) *LedgerClient {
	return &LedgerClient{t: newTransport("ledger-service", baseURL, timeout, bs, logger)}
}

type balanceRequest struct {
	Type      models.MutationType `json:"type"`
	Amount    decimal.Decimal     `json:"amount"`
	Reference string              `json:"reference"`
}

type voidRequest struct {
	AccountID string `json:"account_id"`
}

// GetByOwner returns the active ledger of ownerID.
func (c *LedgerClient) GetByOwner(ctx context.Context, ownerID string) (*models.Ledger, error) {
	var view models.LedgerView
	if err := c.t.do(ctx, http.MethodGet, "/ledgers/by-owner/"+url.PathEscape(ownerID), nil, &view); err != nil {
		return nil, err
	}
	return ledgerFromView(view)
}

// Debit takes amount from accountID. Replaying a reference returns the
// original outcome without moving money again.
func (c *LedgerClient) Debit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) (*models.Ledger, error) {
	return c.mutate(ctx, accountID, balanceRequest{Type: models.MutationDebit, Amount: amount, Reference: reference})
}

// Credit adds amount to accountID under reference.
func (c *LedgerClient) Credit(ctx context.Context, accountID string, amount decimal.Decimal, reference string) (*models.Ledger, error) {
	return c.mutate(ctx, accountID, balanceRequest{Type: models.MutationCredit, Amount: amount, Reference: reference})
}

// Void fences reference on accountID and reports what the reference ended up
// as: the original debit or credit if it had already been applied, the
// rejection and its reason if the ledger refused it, a void otherwise.
func (c *LedgerClient) Void(ctx context.Context, reference, accountID string) (*models.LedgerMutation, error) {
	var view models.MutationView
	path := "/ledgers/mutations/" + url.PathEscape(reference) + "/void"
	if err := c.t.do(ctx, http.MethodPost, path, voidRequest{AccountID: accountID}, &view); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(view.Amount)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUnreachable, fmt.Errorf("ledger returned invalid amount %q: %w", view.Amount, err))
	}
	return &models.LedgerMutation{
		Reference: view.Reference,
		AccountID: view.AccountID,
		Type:      models.MutationType(view.Type),
		Amount:    amount,
		Reason:    view.Reason,
		CreatedAt: view.CreatedAt,
	}, nil
}

func (c *LedgerClient) mutate(ctx context.Context, accountID string, req balanceRequest) (*models.Ledger, error) {
	var view models.LedgerView
	if err := c.t.do(ctx, http.MethodPut, "/ledgers/"+url.PathEscape(accountID)+"/balance", req, &view); err != nil {
		return nil, err
	}
	return ledgerFromView(view)
}

func ledgerFromView(view models.LedgerView) (*models.Ledger, error) {
	balance, err := decimal.NewFromString(view.Balance)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUnreachable, fmt.Errorf("ledger returned invalid balance %q: %w", view.Balance, err))
	}
	return &models.Ledger{
		AccountID: view.AccountID,
		OwnerID:   view.OwnerID,
		Balance:   balance,
		Status:    models.LedgerStatus(view.Status),
		Version:   view.Version,
		CreatedAt: view.CreatedAt,
		UpdatedAt: view.UpdatedAt,
	}, nil
}
