// Package health probes primary and secondary endpoints.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/warmstandby/internal/ha"
)

// ProberConfig configures the HTTP prober
type ProberConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// HTTPProber checks an endpoint with a GET request. 2xx and 3xx responses
// count as healthy.
type HTTPProber struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewHTTPProber creates a prober
func NewHTTPProber(cfg ProberConfig, logger *zap.Logger) *HTTPProber {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "warmstandby-health/1.0"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPProber{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// Check never returns an error. Transport failures produce an unhealthy result.
func (p *HTTPProber) Check(ctx context.Context, target string) ha.HealthCheckResult {
	start := time.Now()
	result := ha.HealthCheckResult{Target: target, CheckedAt: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		result.Error = (&ha.HealthCheckError{Target: target, Err: err}).Error()
		return result
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = (&ha.HealthCheckError{Target: target, Err: err}).Error()
		p.logger.Debug("probe failed", zap.String("target", target), zap.Error(err))
		return result
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		result.Healthy = true
		return result
	}

	result.Error = fmt.Sprintf("status %d", resp.StatusCode)
	p.logger.Debug("probe unhealthy",
		zap.String("target", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", result.Latency))
	return result
}
