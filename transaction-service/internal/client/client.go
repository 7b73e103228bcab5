// Package client holds the HTTP clients the transaction service uses to talk
// to its collaborators. Every call is bounded by a timeout and runs behind a
// circuit breaker; transport failures and 5xx answers surface as
// apperr.ErrUnreachable, while 4xx answers are rebuilt into the sentinel
// named by the response code.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings tunes the circuit breaker put in front of a collaborator.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		OpenTimeout:         10 * time.Second,
		HalfOpenRequests:    1,
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// transport is the JSON-over-HTTP plumbing shared by the clients.
type transport struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func newTransport(name, baseURL string, timeout time.Duration, bs BreakerSettings, logger *zap.Logger) *transport {
	logger = logger.With(zap.String("collaborator", name))
	return &transport{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: bs.HalfOpenRequests,
			Timeout:     bs.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= bs.ConsecutiveFailures
			},
			// Business rejections are answers, not outages.
			IsSuccessful: func(err error) bool {
				return err == nil || !apperr.IsUnreachable(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("from", from.String()), zap.String("to", to.String()))
			},
		}),
		logger: logger,
	}
}

// do sends body (if any) as JSON and decodes a 2xx answer into out.
func (t *transport) do(ctx context.Context, method, path string, body, out any) error {
	_, err := t.breaker.Execute(func() (any, error) {
		return nil, t.roundTrip(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Wrap(apperr.ErrUnreachable, fmt.Errorf("%s: %w", t.name, err))
	}
	return err
}

func (t *transport) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", t.name, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", t.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Warn("collaborator call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return apperr.Wrap(apperr.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.ErrUnreachable, fmt.Errorf("failed to read %s response: %w", t.name, err))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		t.logger.Warn("collaborator answered with server error",
			zap.String("method", method), zap.String("path", path), zap.Int("status_code", resp.StatusCode))
		return apperr.Wrap(apperr.ErrUnreachable, fmt.Errorf("%s returned status %d", t.name, resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return apperr.FromCode(eb.Code, eb.Message, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	// The call succeeded but its answer is unreadable: the caller cannot tell
	// what happened, same as a lost reply.
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.ErrUnreachable, fmt.Errorf("failed to decode %s response: %w", t.name, err))
	}
	return nil
}
