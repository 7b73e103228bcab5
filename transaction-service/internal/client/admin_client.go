package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/eaglebank/wallet/shared/models"
	"go.uber.org/zap"
)

// AdminClient drives the transaction service's operator API.
type AdminClient struct {
	t *transport
}

func NewAdminClient(baseURL string, timeout time.Duration, logger *zap.Logger) *AdminClient {
	return &AdminClient{t: newTransport("transaction-service", baseURL, timeout, DefaultBreakerSettings(), logger)}
}

type sagaList struct {
	Sagas []models.SagaView `json:"sagas"`
}

// ListSagas returns unfinished sagas, narrowed to state when it is set.
func (c *AdminClient) ListSagas(ctx context.Context, state string, limit int) ([]models.SagaView, error) {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/internal/sagas"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out sagaList
	if err := c.t.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Sagas, nil
}

func (c *AdminClient) RetrySaga(ctx context.Context, transferID string) (*models.SagaView, error) {
	var out models.SagaView
	if err := c.t.do(ctx, http.MethodPost, "/internal/sagas/"+url.PathEscape(transferID)+"/retry", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
