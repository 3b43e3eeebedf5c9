package ha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DREventType categorizes DR events
type DREventType string

const (
	DREventFailoverStart  DREventType = "failover_start"
	DREventFailoverDone   DREventType = "failover_complete"
	DREventFailoverFailed DREventType = "failover_failed"
	DREventPrimaryHealthy DREventType = "primary_healthy"
	DREventRearmed        DREventType = "rearmed"
)

// DREvent represents a disaster recovery event
type DREvent struct {
	Type      DREventType       `json:"type"`
	Domain    string            `json:"domain"`
	RunID     string            `json:"run_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DRConfig holds failover run configuration
type DRConfig struct {
	RunTimeout       time.Duration `json:"run_timeout"`
	PollInterval     time.Duration `json:"poll_interval"`
	PromotionTimeout time.Duration `json:"promotion_timeout"`
	ScalingTimeout   time.Duration `json:"scaling_timeout"`
	DNSTimeout       time.Duration `json:"dns_timeout"`
	NotifyTimeout    time.Duration `json:"notify_timeout"`
}

// DefaultDRConfig returns sensible defaults
func DefaultDRConfig() *DRConfig {
	return &DRConfig{
		RunTimeout:       60 * time.Minute,
		PollInterval:     30 * time.Second,
		PromotionTimeout: 20 * time.Minute,
		ScalingTimeout:   10 * time.Minute,
		DNSTimeout:       5 * time.Minute,
		NotifyTimeout:    30 * time.Second,
	}
}

func (c *DRConfig) applyDefaults() {
	d := DefaultDRConfig()
	if c.RunTimeout <= 0 {
		c.RunTimeout = d.RunTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PromotionTimeout <= 0 {
		c.PromotionTimeout = d.PromotionTimeout
	}
	if c.ScalingTimeout <= 0 {
		c.ScalingTimeout = d.ScalingTimeout
	}
	if c.DNSTimeout <= 0 {
		c.DNSTimeout = d.DNSTimeout
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = d.NotifyTimeout
	}
}

// Dependencies are the collaborators a DROrchestrator drives. Health,
// Database, Compute and DNS are required.
type Dependencies struct {
	Health   HealthSource
	Database DatabaseAdmin
	Compute  ComputeAdmin
	DNS      DNSAdmin
	Sink     NotificationSink
	Store    RunStore
	Archiver RunArchiver
	Tracker  *RTORPOTracker
	Observer Observer
}

// DROrchestrator runs the failover state machine for failover domains.
type DROrchestrator struct {
	config   *DRConfig
	health   HealthSource
	database DatabaseAdmin
	scaler   *CapacityScaler
	dns      *DNSCutover
	notifier *Notifier
	store    RunStore
	archiver RunArchiver
	tracker  *RTORPOTracker
	observer Observer
	logger   *zap.Logger

	mu         sync.RWMutex
	inFlight   map[string]string
	failedOver map[string]string
	events     []DREvent
	onEvent    func(*DREvent)

	wg sync.WaitGroup
}

// NewDROrchestrator creates a new disaster recovery orchestrator
func NewDROrchestrator(config *DRConfig, deps Dependencies, logger *zap.Logger) (*DROrchestrator, error) {
	if config == nil {
		config = DefaultDRConfig()
	}
	config.applyDefaults()

	if deps.Health == nil {
		return nil, fmt.Errorf("health source required")
	}
	if deps.Database == nil {
		return nil, fmt.Errorf("database admin required")
	}
	if deps.Compute == nil {
		return nil, fmt.Errorf("compute admin required")
	}
	if deps.DNS == nil {
		return nil, fmt.Errorf("dns admin required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Store == nil {
		deps.Store = NewMemoryRunStore(0)
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}

	return &DROrchestrator{
		config:     config,
		health:     deps.Health,
		database:   deps.Database,
		scaler:     NewCapacityScaler(deps.Compute),
		dns:        NewDNSCutover(deps.DNS),
		notifier:   NewNotifier(deps.Sink, logger.Named("notifier")),
		store:      deps.Store,
		archiver:   deps.Archiver,
		tracker:    deps.Tracker,
		observer:   deps.Observer,
		logger:     logger,
		inFlight:   make(map[string]string),
		failedOver: make(map[string]string),
		events:     make([]DREvent, 0),
	}, nil
}

// Execute runs the state machine to completion for domain. The returned run
// is always non-nil unless the run could not start. The error is the fatal
// step error of a failed or timed out run.
func (dr *DROrchestrator) Execute(ctx context.Context, domain FailoverDomain, req TriggerRequest) (*Run, error) {
	run, err := dr.begin(ctx, domain, req)
	if err != nil {
		return nil, err
	}
	dr.execute(ctx, domain, run)
	return run, run.Err()
}

// Start launches a run in the background and returns a snapshot of it.
func (dr *DROrchestrator) Start(ctx context.Context, domain FailoverDomain, req TriggerRequest) (*Run, error) {
	run, err := dr.begin(ctx, domain, req)
	if err != nil {
		return nil, err
	}
	snapshot := run.Clone()

	dr.wg.Add(1)
	go func() {
		defer dr.wg.Done()
		dr.execute(ctx, domain, run)
	}()

	return snapshot, nil
}

// Wait blocks until all background runs have finished.
func (dr *DROrchestrator) Wait() {
	dr.wg.Wait()
}

// begin reserves the domain for a new run.
func (dr *DROrchestrator) begin(ctx context.Context, domain FailoverDomain, req TriggerRequest) (*Run, error) {
	if domain.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnknownDomain)
	}

	dr.mu.Lock()
	if active, busy := dr.inFlight[domain.Name]; busy {
		dr.mu.Unlock()
		return nil, fmt.Errorf("%w: domain %s run %s", ErrRunInProgress, domain.Name, active)
	}
	run := newRun(domain.Name, req)
	dr.inFlight[domain.Name] = run.ID
	dr.mu.Unlock()

	dr.save(ctx, run)
	return run, nil
}

func (dr *DROrchestrator) release(domain string) {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	delete(dr.inFlight, domain)
}

func (dr *DROrchestrator) execute(parent context.Context, domain FailoverDomain, run *Run) {
	defer dr.release(domain.Name)

	logger := dr.logger.With(zap.String("run_id", run.ID), zap.String("domain", domain.Name))
	ctx, cancel := context.WithTimeout(parent, dr.config.RunTimeout)
	defer cancel()

	logger.Info("failover run started",
		zap.String("reason", run.Reason),
		zap.Bool("forced", run.Forced))

	var primary HealthCheckResult
	_ = dr.step(ctx, logger, run, StateCheckPrimaryHealth, func(ctx context.Context) error {
		primary = dr.health.Check(ctx, domain.PrimaryTarget)
		run.PrimaryCheck = &primary
		return nil
	})

	proceed := false
	_ = dr.step(ctx, logger, run, StateDecideFailover, func(ctx context.Context) error {
		proceed = !primary.Healthy || run.Forced
		return nil
	})

	if !proceed {
		logger.Info("primary healthy, no failover needed", zap.Duration("latency", primary.Latency))
		dr.emitEvent(DREvent{
			Type:      DREventPrimaryHealthy,
			Domain:    domain.Name,
			RunID:     run.ID,
			Timestamp: time.Now(),
			Message:   fmt.Sprintf("Primary %s healthy, run ended without changes", domain.PrimaryTarget),
		})
		dr.finish(ctx, logger, run, RunStatusNoop)
		return
	}

	event := NewFailoverEvent(run.Reason, primary, run.Forced)
	run.Event = &event
	run.Reason = event.Reason
	if dr.tracker != nil {
		dr.tracker.OpenIncident(domain.Name, run.ID, event.TriggerTime)
	}
	dr.emitEvent(DREvent{
		Type:      DREventFailoverStart,
		Domain:    domain.Name,
		RunID:     run.ID,
		Timestamp: event.TriggerTime,
		Message:   fmt.Sprintf("Initiating failover of %s: %s", domain.Name, event.Reason),
		Metadata: map[string]string{
			"from_region": domain.PrimaryRegion,
			"to_region":   domain.SecondaryRegion,
		},
	})

	promoter := NewReplicaPromoter(dr.database, domain.SecondaryRegion)
	cfg := dr.config

	steps := []struct {
		state RunState
		fn    func(context.Context) error
	}{
		{StatePromoteReplica, func(ctx context.Context) error {
			res, err := promoter.Promote(ctx, domain.ReplicaIdentifier)
			run.Promotion = &res
			return err
		}},
		{StateWaitForPromotion, func(ctx context.Context) error {
			res, err := promoter.AwaitPromotion(ctx, domain.ReplicaIdentifier, cfg.PollInterval, cfg.PromotionTimeout)
			if run.Promotion != nil {
				res.AlreadyPrimary = run.Promotion.AlreadyPrimary
				res.ReplicaLag = run.Promotion.ReplicaLag
			}
			run.Promotion = &res
			return err
		}},
		{StateScaleSecondary, func(ctx context.Context) error {
			res, err := dr.scaler.Scale(ctx, domain.Cluster, domain.Service, domain.DesiredCount)
			run.Scale = &res
			return err
		}},
		{StateWaitForScaling, func(ctx context.Context) error {
			res, err := dr.scaler.AwaitCapacity(ctx, domain.Cluster, domain.Service, domain.DesiredCount, cfg.PollInterval, cfg.ScalingTimeout)
			run.Scale = &res
			return err
		}},
		{StateUpdateDNS, func(ctx context.Context) error {
			res, err := dr.dns.Upsert(ctx, domain.DNSRequest())
			run.DNS = &res
			if err != nil {
				return err
			}
			res, err = dr.dns.AwaitSync(ctx, res, cfg.PollInterval, cfg.DNSTimeout)
			run.DNS = &res
			return err
		}},
		{StatePostFailoverCheck, func(ctx context.Context) error {
			res := dr.health.Check(ctx, domain.SecondaryTarget)
			run.PostCheck = &res
			return nil
		}},
	}

	status := RunStatusSucceeded
	for _, s := range steps {
		err := dr.step(ctx, logger, run, s.state, s.fn)
		if err == nil && ctx.Err() != nil {
			// the post check reports a deadline as unhealthy rather than failing
			err = ctx.Err()
			run.Steps[len(run.Steps)-1].Error = err.Error()
		}
		if err == nil {
			continue
		}

		status = RunStatusFailed
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			status = RunStatusTimedOut
			err = fmt.Errorf("%w after %s: %w", ErrRunTimeout, dr.config.RunTimeout, err)
		}
		run.err = &StepError{State: s.state, Err: err}
		run.FailedState = s.state
		run.Error = run.err.Error()
		logger.Error("failover step failed, skipping to notification",
			zap.String("state", string(s.state)),
			zap.Error(err))
		break
	}

	if status == RunStatusSucceeded && run.PostCheck != nil && !run.PostCheck.Healthy {
		status = RunStatusDegraded
		logger.Warn("secondary failed post-failover check",
			zap.String("target", run.PostCheck.Target),
			zap.String("error", run.PostCheck.Error))
	}

	msg := buildNotification(domain, run, status)
	run.Notification = &msg

	notifyBase := ctx
	if ctx.Err() != nil {
		notifyBase = context.WithoutCancel(parent)
	}
	notifyCtx, notifyCancel := context.WithTimeout(notifyBase, dr.config.NotifyTimeout)
	_ = dr.step(notifyCtx, logger, run, StateNotify, func(ctx context.Context) error {
		if err := dr.notifier.Publish(ctx, msg); err != nil {
			run.NotifyError = err.Error()
			dr.observer.ObserveNotificationFailure(domain.Name)
		}
		return nil
	})
	notifyCancel()

	switch status {
	case RunStatusSucceeded, RunStatusDegraded:
		dr.markFailedOver(domain.Name, run.ID)
		if dr.tracker != nil {
			var lag time.Duration
			if run.Promotion != nil {
				lag = run.Promotion.ReplicaLag
			}
			if _, err := dr.tracker.ResolveIncident(domain.Name, lag); err != nil {
				logger.Warn("failed to resolve incident", zap.Error(err))
			}
		}
		dr.emitEvent(DREvent{
			Type:      DREventFailoverDone,
			Domain:    domain.Name,
			RunID:     run.ID,
			Timestamp: time.Now(),
			Message:   fmt.Sprintf("Failover complete: %s now served from %s", domain.Name, domain.SecondaryRegion),
			Metadata: map[string]string{
				"from_region": domain.PrimaryRegion,
				"to_region":   domain.SecondaryRegion,
				"status":      string(status),
			},
		})
	default:
		dr.emitEvent(DREvent{
			Type:      DREventFailoverFailed,
			Domain:    domain.Name,
			RunID:     run.ID,
			Timestamp: time.Now(),
			Message:   fmt.Sprintf("Failover of %s failed at %s", domain.Name, run.FailedState),
			Metadata: map[string]string{
				"status": string(status),
				"error":  run.Error,
			},
		})
	}

	dr.finish(ctx, logger, run, status)
}

// step runs fn as one state of the machine and records it on the run.
func (dr *DROrchestrator) step(ctx context.Context, logger *zap.Logger, run *Run, state RunState, fn func(context.Context) error) error {
	run.State = state
	record := StepRecord{State: state, StartedAt: time.Now()}

	var err error
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else {
		err = fn(ctx)
	}

	record.FinishedAt = time.Now()
	if err != nil {
		record.Error = err.Error()
	}
	run.Steps = append(run.Steps, record)

	duration := record.FinishedAt.Sub(record.StartedAt)
	dr.observer.ObserveStep(run.Domain, state, duration, err)
	logger.Debug("state complete",
		zap.String("state", string(state)),
		zap.Duration("duration", duration),
		zap.Bool("ok", err == nil))

	dr.save(ctx, run)
	return err
}

func (dr *DROrchestrator) finish(ctx context.Context, logger *zap.Logger, run *Run, status RunStatus) {
	now := time.Now()
	run.Steps = append(run.Steps, StepRecord{State: StateDone, StartedAt: now, FinishedAt: now})
	run.State = StateDone
	run.Status = status
	run.FinishedAt = now

	dr.save(ctx, run)
	dr.observer.ObserveRun(run)

	if dr.archiver != nil && status != RunStatusNoop {
		archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dr.config.NotifyTimeout)
		if err := dr.archiver.Archive(archiveCtx, run.Clone()); err != nil {
			logger.Warn("failed to archive run", zap.Error(err))
		}
		cancel()
	}

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Duration("duration", run.Duration()),
	}
	if run.err != nil {
		logger.Error("failover run finished", append(fields, zap.Error(run.err))...)
		return
	}
	logger.Info("failover run finished", fields...)
}

// save persists progress. Store failures never change the run outcome.
func (dr *DROrchestrator) save(ctx context.Context, run *Run) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := dr.store.SaveRun(saveCtx, run); err != nil {
		dr.logger.Warn("failed to persist run",
			zap.String("run_id", run.ID),
			zap.String("state", string(run.State)),
			zap.Error(err))
	}
}

func buildNotification(domain FailoverDomain, run *Run, status RunStatus) NotificationMessage {
	msg := NotificationMessage{
		Metadata: map[string]string{
			"run_id": run.ID,
			"domain": domain.Name,
			"status": string(status),
		},
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Domain: %s\n", domain.Name)
	fmt.Fprintf(&body, "Run: %s\n", run.ID)
	fmt.Fprintf(&body, "Reason: %s\n", run.Reason)
	if run.Promotion != nil {
		fmt.Fprintf(&body, "Database: %s %s\n", run.Promotion.SourceIdentifier, run.Promotion.Status)
	}
	if run.Scale != nil {
		fmt.Fprintf(&body, "Service: %s/%s %d/%d running\n",
			run.Scale.ClusterIdentifier, run.Scale.ServiceIdentifier, run.Scale.RunningCount, run.Scale.DesiredCount)
	}
	if run.DNS != nil {
		fmt.Fprintf(&body, "DNS: %s -> %s (%s)\n", run.DNS.RecordName, run.DNS.NewTarget, run.DNS.Status)
	}
	if run.PostCheck != nil {
		fmt.Fprintf(&body, "Post-failover check: healthy=%t\n", run.PostCheck.Healthy)
	}

	switch status {
	case RunStatusSucceeded:
		msg.Subject = "Failover complete"
		msg.Severity = SeverityInfo
	case RunStatusDegraded:
		msg.Subject = "Failover complete: post-failover check failed"
		msg.Severity = SeverityWarning
	case RunStatusTimedOut:
		msg.Subject = "Failover aborted: run timeout exceeded"
		msg.Severity = SeverityCritical
		msg.Metadata["failed_state"] = string(run.FailedState)
		fmt.Fprintf(&body, "Error: %s\n", run.Error)
	default:
		msg.Subject = fmt.Sprintf("Failover failed at %s", run.FailedState)
		msg.Severity = SeverityCritical
		msg.Metadata["failed_state"] = string(run.FailedState)
		fmt.Fprintf(&body, "Error: %s\n", run.Error)
		if errors.Is(run.err, ErrRecordConflict) {
			body.WriteString("Manual DNS override detected; operator action required.\n")
		}
	}

	msg.Body = body.String()
	return msg
}

func (dr *DROrchestrator) markFailedOver(domain, runID string) {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	dr.failedOver[domain] = runID
}

// FailedOver reports whether domain has completed a failover that has not
// been rearmed yet.
func (dr *DROrchestrator) FailedOver(domain string) bool {
	dr.mu.RLock()
	defer dr.mu.RUnlock()
	_, ok := dr.failedOver[domain]
	return ok
}

// Rearm clears the failed-over marker so automatic failover can fire again
// once the primary is restored. An incident left open by failed runs is
// dropped unless a run is still in flight.
func (dr *DROrchestrator) Rearm(domain string) {
	dr.mu.Lock()
	defer dr.mu.Unlock()

	delete(dr.failedOver, domain)
	if _, running := dr.inFlight[domain]; !running && dr.tracker != nil {
		dr.tracker.DropIncident(domain)
	}
	dr.emitEventLocked(DREvent{
		Type:      DREventRearmed,
		Domain:    domain,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("Automatic failover re-armed for %s", domain),
	})
}

// InFlight returns the active run ID for domain, if any.
func (dr *DROrchestrator) InFlight(domain string) (string, bool) {
	dr.mu.RLock()
	defer dr.mu.RUnlock()
	id, ok := dr.inFlight[domain]
	return id, ok
}

// GetEvents returns recent DR events
func (dr *DROrchestrator) GetEvents(limit int) []DREvent {
	dr.mu.RLock()
	defer dr.mu.RUnlock()

	if limit <= 0 || limit > len(dr.events) {
		limit = len(dr.events)
	}

	result := make([]DREvent, limit)
	copy(result, dr.events[len(dr.events)-limit:])
	return result
}

// SetEventCallback sets the event notification callback
func (dr *DROrchestrator) SetEventCallback(cb func(*DREvent)) {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	dr.onEvent = cb
}

func (dr *DROrchestrator) emitEvent(event DREvent) {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	dr.emitEventLocked(event)
}

func (dr *DROrchestrator) emitEventLocked(event DREvent) {
	dr.events = append(dr.events, event)

	if len(dr.events) > 1000 {
		dr.events = dr.events[len(dr.events)-1000:]
	}

	if dr.onEvent != nil {
		dr.onEvent(&event)
	}
}
