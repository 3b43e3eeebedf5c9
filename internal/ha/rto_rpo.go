package ha

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ServiceTier represents the service level for RTO/RPO targets
type ServiceTier string

const (
	TierCritical    ServiceTier = "critical"
	TierWarmStandby ServiceTier = "warm-standby"
	TierStandard    ServiceTier = "standard"
	TierBestEffort  ServiceTier = "best-effort"
)

// RTORPOStatus represents the current health status
type RTORPOStatus string

const (
	StatusHealthy  RTORPOStatus = "healthy"
	StatusWarning  RTORPOStatus = "warning"
	StatusCritical RTORPOStatus = "critical"
)

// RTORPOConfig defines RTO/RPO targets for a failover domain
type RTORPOConfig struct {
	RTO            time.Duration `json:"rto"` // Recovery Time Objective
	RPO            time.Duration `json:"rpo"` // Recovery Point Objective
	Tier           ServiceTier   `json:"tier"`
	AlertThreshold float64       `json:"alert_threshold"` // fraction of RTO that raises a warning
}

// Validate checks if the config is valid
func (c RTORPOConfig) Validate() error {
	if c.RTO <= 0 {
		return errors.New("RTO must be greater than zero")
	}
	if c.RPO <= 0 {
		return errors.New("RPO must be greater than zero")
	}
	if c.RPO > c.RTO {
		return errors.New("RPO should not exceed RTO")
	}
	if c.AlertThreshold < 0 || c.AlertThreshold > 1 {
		return errors.New("alert threshold must be between 0 and 1")
	}
	return nil
}

// GetTierDefaults returns default RTO/RPO for a service tier
func GetTierDefaults(tier ServiceTier) RTORPOConfig {
	switch tier {
	case TierCritical:
		return RTORPOConfig{
			RTO:            time.Minute * 1,
			RPO:            time.Second * 30,
			Tier:           TierCritical,
			AlertThreshold: 0.8,
		}
	case TierWarmStandby:
		return RTORPOConfig{
			RTO:            time.Minute * 30,
			RPO:            time.Minute * 5,
			Tier:           TierWarmStandby,
			AlertThreshold: 0.8,
		}
	case TierStandard:
		return RTORPOConfig{
			RTO:            time.Minute * 15,
			RPO:            time.Minute * 5,
			Tier:           TierStandard,
			AlertThreshold: 0.8,
		}
	case TierBestEffort:
		return RTORPOConfig{
			RTO:            time.Hour * 4,
			RPO:            time.Hour * 1,
			Tier:           TierBestEffort,
			AlertThreshold: 0.9,
		}
	default:
		return GetTierDefaults(TierWarmStandby)
	}
}

// RecoveryEvent represents a completed failover
type RecoveryEvent struct {
	IncidentID   string
	Domain       string
	FailureTime  time.Time
	RecoveryTime time.Time
	DataLoss     time.Duration // replica lag at promotion
}

// RecoveryResult contains the outcome of a recovery event
type RecoveryResult struct {
	IncidentID string        `json:"incident_id"`
	Domain     string        `json:"domain"`
	RTOMet     bool          `json:"rto_met"`
	RPOMet     bool          `json:"rpo_met"`
	ActualRTO  time.Duration `json:"actual_rto"`
	ActualRPO  time.Duration `json:"actual_rpo"`
	Timestamp  time.Time     `json:"timestamp"`
}

// RTORPOMetrics contains aggregated metrics
type RTORPOMetrics struct {
	TotalIncidents    int           `json:"total_incidents"`
	RTOCompliant      int           `json:"rto_compliant"`
	RPOCompliant      int           `json:"rpo_compliant"`
	RTOComplianceRate float64       `json:"rto_compliance_rate"`
	RPOComplianceRate float64       `json:"rpo_compliance_rate"`
	AverageRTO        time.Duration `json:"average_rto"`
	AverageRPO        time.Duration `json:"average_rpo"`
	WorstRTO          time.Duration `json:"worst_rto"`
	WorstRPO          time.Duration `json:"worst_rpo"`
}

// StatusCheck represents the current RTO/RPO status
type StatusCheck struct {
	Status          RTORPOStatus `json:"status"`
	RTOAtRisk       bool         `json:"rto_at_risk"`
	RTOBreached     bool         `json:"rto_breached"`
	ActiveIncidents int          `json:"active_incidents"`
	Message         string       `json:"message"`
	CheckedAt       time.Time    `json:"checked_at"`
}

// SLAReport represents a periodic SLA compliance report
type SLAReport struct {
	GeneratedAt          time.Time        `json:"generated_at"`
	PeriodStart          time.Time        `json:"period_start"`
	PeriodEnd            time.Time        `json:"period_end"`
	Tier                 ServiceTier      `json:"tier"`
	TotalIncidents       int              `json:"total_incidents"`
	RTOTarget            time.Duration    `json:"rto_target"`
	RPOTarget            time.Duration    `json:"rpo_target"`
	RTOCompliancePercent float64          `json:"rto_compliance_percent"`
	RPOCompliancePercent float64          `json:"rpo_compliance_percent"`
	AverageRecoveryTime  time.Duration    `json:"average_recovery_time"`
	AverageDataLoss      time.Duration    `json:"average_data_loss"`
	Incidents            []RecoveryResult `json:"incidents"`
}

type activeIncident struct {
	ID        string
	Domain    string
	StartTime time.Time
	Runs      []string
}

// RTORPOTracker tracks RTO/RPO compliance of failover runs. An incident
// opens per domain when a run decides to fail over and resolves when a run
// for that domain completes the failover; failed runs leave it open for the
// retry.
type RTORPOTracker struct {
	config          RTORPOConfig
	domainConfigs   map[string]RTORPOConfig
	history         []RecoveryResult
	activeIncidents map[string]*activeIncident
	mu              sync.RWMutex
}

// NewRTORPOTracker creates a new tracker with a single config
func NewRTORPOTracker(config RTORPOConfig) (*RTORPOTracker, error) {
	return NewRTORPOTrackerWithDomains(config, nil)
}

// NewRTORPOTrackerWithDomains creates a tracker with per-domain overrides of
// the default config.
func NewRTORPOTrackerWithDomains(config RTORPOConfig, domains map[string]RTORPOConfig) (*RTORPOTracker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	for name, cfg := range domains {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config for domain %s: %w", name, err)
		}
	}

	configs := make(map[string]RTORPOConfig, len(domains))
	for name, cfg := range domains {
		configs[name] = cfg
	}

	return &RTORPOTracker{
		config:          config,
		domainConfigs:   configs,
		history:         make([]RecoveryResult, 0),
		activeIncidents: make(map[string]*activeIncident),
	}, nil
}

// Tier returns the default service tier
func (t *RTORPOTracker) Tier() ServiceTier {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config.Tier
}

// DomainConfig returns the targets for a domain
func (t *RTORPOTracker) DomainConfig(domain string) RTORPOConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.configForLocked(domain)
}

func (t *RTORPOTracker) configForLocked(domain string) RTORPOConfig {
	if cfg, ok := t.domainConfigs[domain]; ok {
		return cfg
	}
	return t.config
}

// OpenIncident starts the RTO clock for a domain. A retry while the domain
// still has an open incident joins it, so the clock keeps the first failure
// time.
func (t *RTORPOTracker) OpenIncident(domain, runID string, failureTime time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if incident, ok := t.activeIncidents[domain]; ok {
		incident.Runs = append(incident.Runs, runID)
		return
	}
	t.activeIncidents[domain] = &activeIncident{
		ID:        runID,
		Domain:    domain,
		StartTime: failureTime,
		Runs:      []string{runID},
	}
}

// HasActiveIncident reports whether the domain has an open incident
func (t *RTORPOTracker) HasActiveIncident(domain string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, exists := t.activeIncidents[domain]
	return exists
}

// ActiveIncidents returns the number of open incidents
func (t *RTORPOTracker) ActiveIncidents() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.activeIncidents)
}

// ResolveIncident closes the open incident of a domain and records the
// recovery measured from its first failure.
func (t *RTORPOTracker) ResolveIncident(domain string, dataLoss time.Duration) (RecoveryResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	incident, exists := t.activeIncidents[domain]
	if !exists {
		return RecoveryResult{}, fmt.Errorf("no open incident for domain %s", domain)
	}

	result := t.recordRecoveryLocked(RecoveryEvent{
		IncidentID:   incident.ID,
		Domain:       domain,
		FailureTime:  incident.StartTime,
		RecoveryTime: time.Now(),
		DataLoss:     dataLoss,
	})
	delete(t.activeIncidents, domain)

	return result, nil
}

// DropIncident discards the open incident of a domain without recording a
// recovery.
func (t *RTORPOTracker) DropIncident(domain string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, exists := t.activeIncidents[domain]
	delete(t.activeIncidents, domain)
	return exists
}

// RecordRecovery records a recovery event and returns the result
func (t *RTORPOTracker) RecordRecovery(event RecoveryEvent) RecoveryResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.recordRecoveryLocked(event)
}

// RecordRun replays a persisted run into the history. Only runs that
// completed a failover count; it reports whether the run was recorded.
func (t *RTORPOTracker) RecordRun(run *Run) bool {
	if run == nil || run.Event == nil || run.FinishedAt.IsZero() {
		return false
	}
	if run.Status != RunStatusSucceeded && run.Status != RunStatusDegraded {
		return false
	}

	var lag time.Duration
	if run.Promotion != nil {
		lag = run.Promotion.ReplicaLag
	}

	t.RecordRecovery(RecoveryEvent{
		IncidentID:   run.ID,
		Domain:       run.Domain,
		FailureTime:  run.Event.TriggerTime,
		RecoveryTime: run.FinishedAt,
		DataLoss:     lag,
	})
	return true
}

// recordRecoveryLocked records recovery; caller must hold the lock
func (t *RTORPOTracker) recordRecoveryLocked(event RecoveryEvent) RecoveryResult {
	cfg := t.configForLocked(event.Domain)

	actualRTO := event.RecoveryTime.Sub(event.FailureTime)
	actualRPO := event.DataLoss

	result := RecoveryResult{
		IncidentID: event.IncidentID,
		Domain:     event.Domain,
		RTOMet:     actualRTO <= cfg.RTO,
		RPOMet:     actualRPO <= cfg.RPO,
		ActualRTO:  actualRTO,
		ActualRPO:  actualRPO,
		Timestamp:  event.RecoveryTime,
	}

	t.history = append(t.history, result)

	return result
}

// GetMetrics returns aggregated metrics from history
func (t *RTORPOTracker) GetMetrics() RTORPOMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := RTORPOMetrics{
		TotalIncidents:    len(t.history),
		RTOComplianceRate: 100.0,
		RPOComplianceRate: 100.0,
	}

	if len(t.history) == 0 {
		return metrics
	}

	var totalRTO, totalRPO time.Duration

	for _, result := range t.history {
		if result.RTOMet {
			metrics.RTOCompliant++
		}
		if result.RPOMet {
			metrics.RPOCompliant++
		}

		totalRTO += result.ActualRTO
		totalRPO += result.ActualRPO

		if result.ActualRTO > metrics.WorstRTO {
			metrics.WorstRTO = result.ActualRTO
		}
		if result.ActualRPO > metrics.WorstRPO {
			metrics.WorstRPO = result.ActualRPO
		}
	}

	metrics.RTOComplianceRate = float64(metrics.RTOCompliant) / float64(metrics.TotalIncidents) * 100
	metrics.RPOComplianceRate = float64(metrics.RPOCompliant) / float64(metrics.TotalIncidents) * 100
	metrics.AverageRTO = totalRTO / time.Duration(metrics.TotalIncidents)
	metrics.AverageRPO = totalRPO / time.Duration(metrics.TotalIncidents)

	return metrics
}

// CheckStatus reports whether any open incident is close to or past its RTO
func (t *RTORPOTracker) CheckStatus(ctx context.Context) StatusCheck {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := StatusCheck{
		Status:          StatusHealthy,
		ActiveIncidents: len(t.activeIncidents),
		CheckedAt:       time.Now(),
	}

	if len(t.activeIncidents) == 0 {
		status.Message = "No active incidents"
		return status
	}

	incidents := make([]*activeIncident, 0, len(t.activeIncidents))
	for _, incident := range t.activeIncidents {
		incidents = append(incidents, incident)
	}
	sort.Slice(incidents, func(i, j int) bool { return incidents[i].StartTime.Before(incidents[j].StartTime) })

	now := time.Now()
	status.Message = fmt.Sprintf("%d incident(s) within RTO", len(incidents))

	for _, incident := range incidents {
		cfg := t.configForLocked(incident.Domain)
		threshold := cfg.AlertThreshold
		if threshold == 0 {
			threshold = 0.8
		}
		rtoThreshold := time.Duration(float64(cfg.RTO) * threshold)
		elapsed := now.Sub(incident.StartTime)

		if elapsed > cfg.RTO {
			status.RTOBreached = true
			status.RTOAtRisk = true
			status.Status = StatusCritical
			status.Message = fmt.Sprintf("RTO breached for %s incident %s", incident.Domain, incident.ID)
		} else if elapsed > rtoThreshold {
			status.RTOAtRisk = true
			if status.Status != StatusCritical {
				status.Status = StatusWarning
				status.Message = fmt.Sprintf("Approaching RTO for %s incident %s", incident.Domain, incident.ID)
			}
		}
	}

	return status
}

// GenerateSLAReport generates a report for a time period
func (t *RTORPOTracker) GenerateSLAReport(start, end time.Time) SLAReport {
	t.mu.RLock()
	defer t.mu.RUnlock()

	report := SLAReport{
		GeneratedAt:          time.Now(),
		PeriodStart:          start,
		PeriodEnd:            end,
		Tier:                 t.config.Tier,
		RTOTarget:            t.config.RTO,
		RPOTarget:            t.config.RPO,
		RTOCompliancePercent: 100.0,
		RPOCompliancePercent: 100.0,
		Incidents:            make([]RecoveryResult, 0),
	}

	var rtoCompliant, rpoCompliant int
	var totalRecoveryTime, totalDataLoss time.Duration

	for _, result := range t.history {
		if result.Timestamp.Before(start) || result.Timestamp.After(end) {
			continue
		}

		report.Incidents = append(report.Incidents, result)
		report.TotalIncidents++

		if result.RTOMet {
			rtoCompliant++
		}
		if result.RPOMet {
			rpoCompliant++
		}

		totalRecoveryTime += result.ActualRTO
		totalDataLoss += result.ActualRPO
	}

	if report.TotalIncidents > 0 {
		report.RTOCompliancePercent = float64(rtoCompliant) / float64(report.TotalIncidents) * 100
		report.RPOCompliancePercent = float64(rpoCompliant) / float64(report.TotalIncidents) * 100
		report.AverageRecoveryTime = totalRecoveryTime / time.Duration(report.TotalIncidents)
		report.AverageDataLoss = totalDataLoss / time.Duration(report.TotalIncidents)
	}

	return report
}
