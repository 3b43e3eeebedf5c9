// Package metrics exports failover and API metrics to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FairForge/warmstandby/internal/ha"
)

const namespace = "warmstandby"

// Recorder holds the Prometheus metrics. It implements ha.Observer.
type Recorder struct {
	StepDuration         *prometheus.HistogramVec
	StepFailures         *prometheus.CounterVec
	Runs                 *prometheus.CounterVec
	RunDuration          *prometheus.HistogramVec
	NotificationFailures *prometheus.CounterVec
	TargetHealthy        *prometheus.GaugeVec
	ProbeDuration        *prometheus.HistogramVec
	RequestCounter       *prometheus.CounterVec
	LatencyHistogram     *prometheus.HistogramVec
	RateLimitHits        *prometheus.CounterVec

	registry *prometheus.Registry
}

// failover steps range from sub-second checks to twenty minute promotions
var stepBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200}

// NewRecorder creates the metrics on a private registry
func NewRecorder() *Recorder {
	r := &Recorder{
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of failover steps in seconds",
				Buckets:   stepBuckets,
			},
			[]string{"domain", "state"},
		),
		StepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_failures_total",
				Help:      "Total number of failed failover steps",
			},
			[]string{"domain", "state"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of failover runs by outcome",
			},
			[]string{"domain", "status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of failover runs, the achieved RTO",
				Buckets:   stepBuckets,
			},
			[]string{"domain", "status"},
		),
		NotificationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_failures_total",
				Help:      "Total number of notifications that could not be delivered",
			},
			[]string{"domain"},
		),
		TargetHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "target_healthy",
				Help:      "1 when the last health check of the target succeeded",
			},
			[]string{"target"},
		),
		ProbeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Health probe latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"target"},
		),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		LatencyHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RateLimitHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Total number of rate limited requests",
			},
			[]string{"route"},
		),
		registry: prometheus.NewRegistry(),
	}

	r.registry.MustRegister(r.collectors()...)
	return r
}

func (r *Recorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.StepDuration, r.StepFailures, r.Runs, r.RunDuration,
		r.NotificationFailures, r.TargetHealthy, r.ProbeDuration,
		r.RequestCounter, r.LatencyHistogram, r.RateLimitHits,
	}
}

// Register additionally registers the metrics with reg. Metrics already
// registered there are skipped.
func (r *Recorder) Register(reg prometheus.Registerer) error {
	for _, c := range r.collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveStep records one state machine step
func (r *Recorder) ObserveStep(domain string, state ha.RunState, duration time.Duration, err error) {
	r.StepDuration.WithLabelValues(domain, string(state)).Observe(duration.Seconds())
	if err != nil {
		r.StepFailures.WithLabelValues(domain, string(state)).Inc()
	}
}

// ObserveRun records a finished run
func (r *Recorder) ObserveRun(run *ha.Run) {
	status := string(run.Status)
	r.Runs.WithLabelValues(run.Domain, status).Inc()
	if !run.FinishedAt.IsZero() {
		r.RunDuration.WithLabelValues(run.Domain, status).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}
}

// ObserveNotificationFailure counts an undelivered notification
func (r *Recorder) ObserveNotificationFailure(domain string) {
	r.NotificationFailures.WithLabelValues(domain).Inc()
}

// ObserveProbe records the outcome of a health check
func (r *Recorder) ObserveProbe(result ha.HealthCheckResult) {
	v := 0.0
	if result.Healthy {
		v = 1
	}
	r.TargetHealthy.WithLabelValues(result.Target).Set(v)
	r.ProbeDuration.WithLabelValues(result.Target).Observe(result.Latency.Seconds())
}

// IncrementRequest increments the request counter
func (r *Recorder) IncrementRequest(method, route string, status int) {
	r.RequestCounter.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// RecordLatency records request latency
func (r *Recorder) RecordLatency(method, route string, seconds float64) {
	r.LatencyHistogram.WithLabelValues(method, route).Observe(seconds)
}

// IncrementRateLimitHit increments the rate limit hit counter
func (r *Recorder) IncrementRateLimitHit(route string) {
	r.RateLimitHits.WithLabelValues(route).Inc()
}

// Registry exposes the private registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler returns the Prometheus metrics handler
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
