// Package proxy forwards gateway requests to the services behind it.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/eaglebank/wallet/shared/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Hop-by-hop and identity headers are never copied to the upstream request.
var strippedRequestHeaders = []string{
	middleware.UserIDHeader,
	"Authorization",
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type Proxy struct {
	client *http.Client
	logger *zap.Logger
}

// New returns a Proxy whose upstream calls give up after timeout.
func New(timeout time.Duration, logger *zap.Logger) *Proxy {
	return &Proxy{
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "proxy")),
	}
}

// To forwards the request to serviceURL + path. The caller identity set by
// AuthMiddleware replaces whatever X-User-ID the client sent.
func (p *Proxy) To(serviceURL, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := serviceURL + expand(path, c)
		if c.Request.URL.RawQuery != "" {
			target += "?" + c.Request.URL.RawQuery
		}

		var body io.Reader
		if c.Request.Body != nil {
			payload, err := io.ReadAll(c.Request.Body)
			if err != nil {
				middleware.RespondWithError(c, http.StatusBadRequest, "Failed to read request body")
				return
			}
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, body)
		if err != nil {
			middleware.RespondWithAppError(c, err)
			return
		}
		req.Header = c.Request.Header.Clone()
		for _, h := range strippedRequestHeaders {
			req.Header.Del(h)
		}
		if userID, ok := middleware.GetUserID(c); ok {
			req.Header.Set(middleware.UserIDHeader, userID)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			p.logger.Warn("upstream unreachable", zap.String("target", target), zap.Error(err))
			if errors.Is(err, context.Canceled) {
				c.Abort()
				return
			}
			middleware.RespondWithAppError(c, upstreamError(c.Request.Method, err))
			return
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			middleware.RespondWithAppError(c, upstreamError(c.Request.Method, err))
			return
		}

		for key, values := range resp.Header {
			if strings.EqualFold(key, "Content-Length") || strings.EqualFold(key, "Transfer-Encoding") {
				continue
			}
			for _, value := range values {
				c.Writer.Header().Add(key, value)
			}
		}
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}
}

// upstreamError maps a failed exchange onto the client's answer. A request
// that never got through is unreachable; a write whose answer was lost may
// have been applied, so the client must retry it under its Idempotency-Key.
func upstreamError(method string, err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return apperr.Wrap(apperr.ErrUnreachable, err)
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return apperr.Wrap(apperr.ErrUnreachable, err)
	}
	return apperr.Wrap(apperr.ErrOutcomeUnknown, err)
}

// expand fills ":name" segments of path from the route parameters.
func expand(path string, c *gin.Context) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if strings.HasPrefix(s, ":") {
			segments[i] = c.Param(s[1:])
		}
	}
	return strings.Join(segments, "/")
}
