package ha

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TargetState represents the observed health of a primary target
type TargetState int

const (
	TargetHealthy TargetState = iota
	TargetDegraded
	TargetFailed
	TargetRecovering
	TargetUnknown
)

func (s TargetState) String() string {
	switch s {
	case TargetHealthy:
		return "healthy"
	case TargetDegraded:
		return "degraded"
	case TargetFailed:
		return "failed"
	case TargetRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON
func (s TargetState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MonitorEventType represents monitor event types
type MonitorEventType int

const (
	EventDomainRegistered MonitorEventType = iota
	EventPrimaryDegraded
	EventPrimaryFailed
	EventPrimaryRecovering
	EventPrimaryRecovered
	EventFailoverTriggered
	EventFailoverSkipped
)

func (t MonitorEventType) String() string {
	switch t {
	case EventDomainRegistered:
		return "domain_registered"
	case EventPrimaryDegraded:
		return "primary_degraded"
	case EventPrimaryFailed:
		return "primary_failed"
	case EventPrimaryRecovering:
		return "primary_recovering"
	case EventPrimaryRecovered:
		return "primary_recovered"
	case EventFailoverTriggered:
		return "failover_triggered"
	case EventFailoverSkipped:
		return "failover_skipped"
	default:
		return "unknown"
	}
}

// MonitorEvent represents a health monitor event
type MonitorEvent struct {
	Type      MonitorEventType
	Domain    string
	Timestamp time.Time
	Message   string
	Details   map[string]interface{}
}

// MonitorConfig configures the health monitor
type MonitorConfig struct {
	CheckInterval     time.Duration
	FailureThreshold  int // consecutive failures before the primary is failed
	RecoveryThreshold int // consecutive successes before it is healthy again
}

// DefaultMonitorConfig returns sensible defaults
func DefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		CheckInterval:     30 * time.Second,
		FailureThreshold:  3,
		RecoveryThreshold: 2,
	}
}

// DomainStatus tracks runtime status of a domain's primary
type DomainStatus struct {
	Domain           string            `json:"domain"`
	State            TargetState       `json:"state"`
	ConsecutiveFails int               `json:"consecutive_fails"`
	ConsecutiveOK    int               `json:"consecutive_ok"`
	LastCheck        time.Time         `json:"last_check"`
	LastResult       HealthCheckResult `json:"last_result"`
	LastRunID        string            `json:"last_run_id,omitempty"`
}

// FailoverTrigger starts failover runs. DROrchestrator implements it.
type FailoverTrigger interface {
	Start(ctx context.Context, domain FailoverDomain, req TriggerRequest) (*Run, error)
	FailedOver(domain string) bool
}

// HealthMonitor probes every registered primary on an interval and starts
// a failover run when one crosses the failure threshold.
type HealthMonitor struct {
	mu          sync.RWMutex
	config      *MonitorConfig
	health      HealthSource
	trigger     FailoverTrigger
	domains     map[string]FailoverDomain
	status      map[string]*DomainStatus
	subscribers []func(MonitorEvent)
	eventChan   chan MonitorEvent
	stopChan    chan struct{}
	stopOnce    sync.Once
	logger      *zap.Logger
}

// NewHealthMonitor creates a new health monitor. trigger may be nil, in which
// case the monitor only reports.
func NewHealthMonitor(config *MonitorConfig, health HealthSource, trigger FailoverTrigger, logger *zap.Logger) *HealthMonitor {
	if config == nil {
		config = DefaultMonitorConfig()
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = 30 * time.Second
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.RecoveryThreshold <= 0 {
		config.RecoveryThreshold = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &HealthMonitor{
		config:      config,
		health:      health,
		trigger:     trigger,
		domains:     make(map[string]FailoverDomain),
		status:      make(map[string]*DomainStatus),
		subscribers: make([]func(MonitorEvent), 0),
		eventChan:   make(chan MonitorEvent, 100),
		stopChan:    make(chan struct{}),
		logger:      logger,
	}

	go m.eventDispatcher()

	return m
}

// Register adds a domain to the probe set. Re-registering a domain replaces
// its configuration and keeps its health counters.
func (m *HealthMonitor) Register(domain FailoverDomain) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.domains[domain.Name] = domain
	if _, ok := m.status[domain.Name]; ok {
		return
	}
	m.status[domain.Name] = &DomainStatus{
		Domain: domain.Name,
		State:  TargetUnknown,
	}

	m.emitEvent(MonitorEvent{
		Type:      EventDomainRegistered,
		Domain:    domain.Name,
		Timestamp: time.Now(),
		Message:   "Domain registered",
	})
}

// Unregister removes a domain from the probe set
func (m *HealthMonitor) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.domains, name)
	delete(m.status, name)
}

// Domain returns the registered configuration for name
func (m *HealthMonitor) Domain(name string) (FailoverDomain, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.domains[name]
	return d, ok
}

// Sync makes the probe set match domains
func (m *HealthMonitor) Sync(domains []FailoverDomain) {
	keep := make(map[string]bool, len(domains))
	for _, d := range domains {
		keep[d.Name] = true
		m.Register(d)
	}

	m.mu.RLock()
	var stale []string
	for name := range m.domains {
		if !keep[name] {
			stale = append(stale, name)
		}
	}
	m.mu.RUnlock()

	for _, name := range stale {
		m.Unregister(name)
	}
}

// Run probes all domains every CheckInterval until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	m.CheckOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// CheckOnce probes every registered primary once, in parallel.
func (m *HealthMonitor) CheckOnce(ctx context.Context) {
	m.mu.RLock()
	domains := make([]FailoverDomain, 0, len(m.domains))
	for _, d := range m.domains {
		domains = append(domains, d)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, d := range domains {
		wg.Add(1)
		go func(d FailoverDomain) {
			defer wg.Done()
			result := m.health.Check(ctx, d.PrimaryTarget)
			m.Report(ctx, d.Name, result)
		}(d)
	}
	wg.Wait()
}

// Report records a health check result for a domain's primary.
func (m *HealthMonitor) Report(ctx context.Context, name string, result HealthCheckResult) {
	m.mu.Lock()

	status, exists := m.status[name]
	if !exists {
		m.mu.Unlock()
		return
	}
	domain := m.domains[name]

	status.LastCheck = result.CheckedAt
	if status.LastCheck.IsZero() {
		status.LastCheck = time.Now()
	}
	status.LastResult = result

	previousState := status.State
	failedNow := false

	if result.Healthy {
		status.ConsecutiveFails = 0
		status.ConsecutiveOK++

		switch status.State {
		case TargetUnknown:
			status.State = TargetHealthy
		case TargetFailed, TargetDegraded:
			status.State = TargetRecovering
			m.emitEvent(MonitorEvent{
				Type:      EventPrimaryRecovering,
				Domain:    name,
				Timestamp: time.Now(),
				Message:   "Primary entering recovery",
			})
			if status.ConsecutiveOK >= m.config.RecoveryThreshold {
				m.markRecovered(name, status)
			}
		case TargetRecovering:
			if status.ConsecutiveOK >= m.config.RecoveryThreshold {
				m.markRecovered(name, status)
			}
		}
	} else {
		status.ConsecutiveOK = 0
		status.ConsecutiveFails++

		threshold := m.config.FailureThreshold

		if status.ConsecutiveFails >= threshold {
			status.State = TargetFailed
		} else if status.State == TargetHealthy || status.State == TargetUnknown {
			status.State = TargetDegraded
			m.emitEvent(MonitorEvent{
				Type:      EventPrimaryDegraded,
				Domain:    name,
				Timestamp: time.Now(),
				Message:   fmt.Sprintf("Primary check failed (%d/%d)", status.ConsecutiveFails, threshold),
				Details:   map[string]interface{}{"error": result.Error},
			})
		}

		if previousState != TargetFailed && status.State == TargetFailed {
			failedNow = true
			m.emitEvent(MonitorEvent{
				Type:      EventPrimaryFailed,
				Domain:    name,
				Timestamp: time.Now(),
				Message:   fmt.Sprintf("Primary failed %d consecutive health checks", status.ConsecutiveFails),
				Details:   map[string]interface{}{"error": result.Error},
			})
		}
	}
	fails := status.ConsecutiveFails
	m.mu.Unlock()

	if failedNow {
		m.maybeFailover(ctx, domain, result, fails)
	}
}

// markRecovered must be called with m.mu held
func (m *HealthMonitor) markRecovered(name string, status *DomainStatus) {
	status.State = TargetHealthy
	m.emitEvent(MonitorEvent{
		Type:      EventPrimaryRecovered,
		Domain:    name,
		Timestamp: time.Now(),
		Message:   "Primary recovered",
	})
}

func (m *HealthMonitor) maybeFailover(ctx context.Context, domain FailoverDomain, result HealthCheckResult, fails int) {
	logger := m.logger.With(zap.String("domain", domain.Name))

	skip := func(reason string) {
		logger.Info("automatic failover skipped", zap.String("reason", reason))
		m.mu.Lock()
		m.emitEvent(MonitorEvent{
			Type:      EventFailoverSkipped,
			Domain:    domain.Name,
			Timestamp: time.Now(),
			Message:   reason,
		})
		m.mu.Unlock()
	}

	switch {
	case m.trigger == nil:
		skip("no failover trigger configured")
		return
	case !domain.AutoFailover:
		skip("automatic failover disabled for domain")
		return
	case m.trigger.FailedOver(domain.Name):
		skip("domain already failed over")
		return
	}

	reason := fmt.Sprintf("primary %s failed %d consecutive health checks", domain.PrimaryTarget, fails)
	if result.Error != "" {
		reason = fmt.Sprintf("%s: %s", reason, result.Error)
	}

	run, err := m.trigger.Start(ctx, domain, TriggerRequest{
		Reason:      reason,
		TriggeredBy: "health-monitor",
	})
	if err != nil {
		if IsRunInProgress(err) {
			skip("failover run already in progress")
			return
		}
		logger.Error("failed to start failover run", zap.Error(err))
		return
	}

	logger.Warn("automatic failover started", zap.String("run_id", run.ID), zap.String("reason", reason))

	m.mu.Lock()
	if status, ok := m.status[domain.Name]; ok {
		status.LastRunID = run.ID
	}
	m.emitEvent(MonitorEvent{
		Type:      EventFailoverTriggered,
		Domain:    domain.Name,
		Timestamp: time.Now(),
		Message:   reason,
		Details:   map[string]interface{}{"run_id": run.ID},
	})
	m.mu.Unlock()
}

// Status returns a copy of a domain's status
func (m *HealthMonitor) Status(name string) (DomainStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if status, exists := m.status[name]; exists {
		return *status, true
	}
	return DomainStatus{Domain: name, State: TargetUnknown}, false
}

// Statuses returns all domain statuses sorted by name
func (m *HealthMonitor) Statuses() []DomainStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]DomainStatus, 0, len(m.status))
	for _, status := range m.status {
		result = append(result, *status)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Domain < result[j].Domain })
	return result
}

// Subscribe registers an event listener
func (m *HealthMonitor) Subscribe(handler func(MonitorEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, handler)
}

// emitEvent sends an event to subscribers
func (m *HealthMonitor) emitEvent(event MonitorEvent) {
	select {
	case m.eventChan <- event:
	default:
		// channel full, drop
	}
}

func (m *HealthMonitor) eventDispatcher() {
	for {
		select {
		case event := <-m.eventChan:
			m.mu.RLock()
			for _, handler := range m.subscribers {
				go handler(event)
			}
			m.mu.RUnlock()
		case <-m.stopChan:
			return
		}
	}
}

// Stop shuts down the monitor
func (m *HealthMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}
