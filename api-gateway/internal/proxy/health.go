package proxy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Upstream map[string]string `json:"upstream"`
}

// Health checks GET /health on every upstream and answers 503 unless all of
// them are healthy.
func (p *Proxy) Health(upstreams map[string]string, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			results = make(map[string]string, len(upstreams))
		)
		for name, baseURL := range upstreams {
			wg.Add(1)
			go func(name, baseURL string) {
				defer wg.Done()
				status := p.checkHealth(ctx, baseURL+"/health")
				mu.Lock()
				results[name] = status
				mu.Unlock()
			}(name, baseURL)
		}
		wg.Wait()

		resp := HealthResponse{Status: "ok", Service: "api-gateway", Upstream: results}
		code := http.StatusOK
		for _, status := range results {
			if status != "ok" {
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		c.JSON(code, resp)
	}
}

func (p *Proxy) checkHealth(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "unreachable"
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "unreachable"
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "unhealthy"
	}
	return "ok"
}
