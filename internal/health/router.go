package health

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/FairForge/warmstandby/internal/ha"
)

// Router dispatches checks to a health source by target scheme, e.g.
// route53://<health-check-id> or https://host/healthz.
type Router struct {
	sources map[string]ha.HealthSource
}

// NewRouter creates a router; http and https go to prober.
func NewRouter(prober ha.HealthSource) *Router {
	r := &Router{sources: make(map[string]ha.HealthSource)}
	if prober != nil {
		r.sources["http"] = prober
		r.sources["https"] = prober
	}
	return r
}

// Handle registers a source for a scheme
func (r *Router) Handle(scheme string, source ha.HealthSource) {
	r.sources[scheme] = source
}

// Check implements ha.HealthSource
func (r *Router) Check(ctx context.Context, target string) ha.HealthCheckResult {
	u, err := url.Parse(target)
	if err != nil {
		return unhealthy(target, err)
	}

	source, ok := r.sources[u.Scheme]
	if !ok {
		return unhealthy(target, fmt.Errorf("no health source for scheme %q", u.Scheme))
	}

	if u.Scheme == "http" || u.Scheme == "https" {
		return source.Check(ctx, target)
	}

	// opaque targets carry the identifier as host
	id := u.Host
	if id == "" {
		id = u.Opaque
	}
	result := source.Check(ctx, id)
	result.Target = target
	return result
}

func unhealthy(target string, err error) ha.HealthCheckResult {
	return ha.HealthCheckResult{
		Target:    target,
		CheckedAt: time.Now(),
		Error:     (&ha.HealthCheckError{Target: target, Err: err}).Error(),
	}
}
