package ha

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullRun = []RunState{
	StateCheckPrimaryHealth,
	StateDecideFailover,
	StatePromoteReplica,
	StateWaitForPromotion,
	StateScaleSecondary,
	StateWaitForScaling,
	StateUpdateDNS,
	StatePostFailoverCheck,
	StateNotify,
	StateDone,
}

func TestNewDROrchestrator(t *testing.T) {
	t.Run("requires collaborators", func(t *testing.T) {
		_, err := NewDROrchestrator(nil, Dependencies{}, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "health source")
	})

	t.Run("fills config defaults", func(t *testing.T) {
		h := newHarness()
		orch, err := NewDROrchestrator(&DRConfig{PollInterval: time.Second}, Dependencies{
			Health:   h.health,
			Database: h.db,
			Compute:  h.compute,
			DNS:      h.dns,
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 60*time.Minute, orch.config.RunTimeout)
		assert.Equal(t, time.Second, orch.config.PollInterval)
		assert.NotNil(t, orch.store)
	})
}

func TestDROrchestrator_FailoverSucceeds(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	h.health.set(domain.PrimaryTarget, false)
	orch := h.orchestrator()

	run, err := orch.Execute(context.Background(), domain, TriggerRequest{})
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, fullRun, run.StatesVisited())
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.Equal(t, StateDone, run.State)
	assert.False(t, run.FinishedAt.IsZero())

	require.NotNil(t, run.Event)
	assert.Equal(t, "primary health check failed", run.Event.Reason)
	assert.False(t, run.Event.InitiatingCheckResult.Healthy)

	require.NotNil(t, run.Promotion)
	assert.Equal(t, PromotionPromoted, run.Promotion.Status)
	assert.False(t, run.Promotion.AlreadyPrimary)
	require.NotNil(t, run.Scale)
	assert.Equal(t, ScaleReady, run.Scale.Status)
	assert.Equal(t, int32(4), run.Scale.RunningCount)
	require.NotNil(t, run.DNS)
	assert.Equal(t, DNSInSync, run.DNS.Status)
	assert.Equal(t, domain.SecondaryAliasDNS, h.dns.target(domain.RecordName))

	msg, ok := h.sink.last()
	require.True(t, ok)
	assert.Equal(t, "Failover complete", msg.Subject)
	assert.Equal(t, SeverityInfo, msg.Severity)
	assert.Equal(t, run.ID, msg.Metadata["run_id"])
	assert.Contains(t, msg.Body, domain.SecondaryAliasDNS)

	assert.Equal(t, []string{
		"rds:promote",
		"ecs:update:4",
		"dns:upsert:" + domain.SecondaryAliasDNS,
		"sns:publish:info",
	}, h.rec.mutations())

	assert.True(t, orch.FailedOver(domain.Name))
	assert.Equal(t, 1, h.tracker.GetMetrics().TotalIncidents)
	assert.False(t, h.tracker.HasActiveIncident(domain.Name))
}

func TestDROrchestrator_HealthyPrimaryIsNoop(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	orch := h.orchestrator()

	run, err := orch.Execute(context.Background(), domain, TriggerRequest{})
	require.NoError(t, err)

	assert.Equal(t, []RunState{StateCheckPrimaryHealth, StateDecideFailover, StateDone}, run.StatesVisited())
	assert.Equal(t, RunStatusNoop, run.Status)
	assert.Nil(t, run.Event)
	assert.Nil(t, run.Notification)
	assert.Empty(t, h.rec.Calls("rds:", "ecs:", "dns:", "sns:"))
	assert.False(t, orch.FailedOver(domain.Name))
}

func TestDROrchestrator_PromotionFailureSkipsToNotify(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	h.health.set(domain.PrimaryTarget, false)
	h.db.promoteErr = errors.New("InvalidDBInstanceState")
	orch := h.orchestrator()

	run, err := orch.Execute(context.Background(), domain, TriggerRequest{})
	require.Error(t, err)
	require.NotNil(t, run)

	assert.ErrorIs(t, err, ErrPromotionFailed)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StatePromoteReplica, stepErr.State)

	assert.Equal(t, []RunState{
		StateCheckPrimaryHealth,
		StateDecideFailover,
		StatePromoteReplica,
		StateNotify,
		StateDone,
	}, run.StatesVisited())
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, StatePromoteReplica, run.FailedState)
	assert.Contains(t, run.Error, "InvalidDBInstanceState")

	assert.Empty(t, h.rec.Calls("ecs:", "dns:"))
	msg, ok := h.sink.last()
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, msg.Severity)
	assert.Equal(t, "Failover failed at PromoteReplica", msg.Subject)
	assert.Equal(t, string(StatePromoteReplica), msg.Metadata["failed_state"])

	assert.False(t, orch.FailedOver(domain.Name))
	assert.True(t, h.tracker.HasActiveIncident(domain.Name))
}

func TestDROrchestrator_RerunIsIdempotent(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	h.health.set(domain.PrimaryTarget, false)
	orch := h.orchestrator()

	_, err := orch.Execute(context.Background(), domain, TriggerRequest{})
	require.NoError(t, err)
	first := len(h.rec.mutations())

	run, err := orch.Execute(context.Background(), domain, TriggerRequest{Reason: "operator retry"})
	require.NoError(t, err)
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.True(t, run.Promotion.AlreadyPrimary)
	assert.Equal(t, ScaleReady, run.Scale.Status)

	second := h.rec.mutations()[first:]
	assert.Equal(t, []string{
		"dns:upsert:" + domain.SecondaryAliasDNS,
		"sns:publish:info",
	}, second)
	assert.Equal(t, domain.SecondaryAliasDNS, h.dns.target(domain.RecordName))
}

func TestDROrchestrator_ScaleStepSkipsUpdateWhenAlreadyScaled(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	h.health.set(domain.PrimaryTarget, false)
	h.compute.desired = domain.DesiredCount
	h.compute.running = domain.DesiredCount
	orch := h.orchestrator()

	run, err := orch.Execute(context.Background(), domain, TriggerRequest{})
	require.NoError(t, err)
	assert.Empty(t, h.rec.Calls("ecs:update"))
	assert.Equal(t, RunStatusSucceeded, run.Status)
}

func TestDROrchestrator_ForcedRunProceedsWhenHealthy(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	orch := h.orchestrator()

	run, err := orch.Execute(context.Background(), domain, TriggerRequest{
		Reason:      "regional drill",
		TriggeredBy: "ops",
		Force:       true,
	})
	require.NoError(t, err)

	assert.Equal(t, fullRun, run.StatesVisited())
	require.NotNil(t, run.Event)
	assert.True(t, run.Event.Forced)
	assert.Equal(t, "regional drill", run.Event.Reason)
	assert.True(t, run.Event.InitiatingCheckResult.Healthy)
	assert.Equal(t, "ops", run.TriggeredBy)
}

func TestDROrchestrator_PostCheckFailureIsDegraded(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	h.health.set(domain.PrimaryTarget, false)
	h.health.set(domain.SecondaryTarget, false)
	orch := h.orchestrator()

	run, err := orch.Execute(context.Background(), domain, TriggerRequest{})
	require.NoError(t, err)

	assert.Equal(t, fullRun, run.StatesVisited())
	assert.Equal(t, RunStatusDegraded, run.Status)
	require.NotNil(t, run.PostCheck)
	assert.False(t, run.PostCheck.Healthy)

	msg, ok := h.sink.last()
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, msg.Severity)
	// nothing rolled back
	assert.Equal(t, domain.SecondaryAliasDNS, h.dns.target(domain.RecordName))
	assert.True(t, orch.FailedOver(domain.Name))
}

func TestDROrchestrator_DNSConflict(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	h.health.set(domain.PrimaryTarget, false)
	h.dns.upsertErr = fmt.Errorf("%w: manual-override record present", ErrRecordConflict)
	orch := h.orchestrator()

	run, err := orch.Execute(context.Background(), domain, TriggerRequest{})
	require.Error(t, err)
	assert.True(t, IsRecordConflict(err))
	assert.Equal(t, StateUpdateDNS, run.FailedState)
	assert.Equal(t, RunStatusFailed, run.Status)

	msg, ok := h.sink.last()
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, msg.Severity)
	assert.Contains(t, msg.Body, "Manual DNS override")
	assert.Empty(t, h.rec.Calls("dns:get-change"))
}

func TestDROrchestrator_RunTimeout(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	h.health.set(domain.PrimaryTarget, false)
	h.compute.stuck = true
	h.config.RunTimeout = 50 * time.Millisecond
	h.config.ScalingTimeout = 10 * time.Second
	orch := h.orchestrator()

	run, err := orch.Execute(context.Background(), domain, TriggerRequest{})
	require.Error(t, err)
	assert.True(t, IsRunTimeout(err))
	assert.Equal(t, RunStatusTimedOut, run.Status)
	assert.Equal(t, StateWaitForScaling, run.FailedState)
	assert.Empty(t, h.rec.Calls("dns:"))

	msg, ok := h.sink.last()
	require.True(t, ok, "notification is still delivered after the run deadline")
	assert.Equal(t, SeverityCritical, msg.Severity)
	assert.Equal(t, "Failover aborted: run timeout exceeded", msg.Subject)
	assert.Equal(t, StateDone, run.StatesVisited()[len(run.Steps)-1])
}

func TestDROrchestrator_RunTimeoutDuringPostCheck(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	h.health.set(domain.PrimaryTarget, false)
	h.health.stall(domain.SecondaryTarget)
	h.config.RunTimeout = 300 * time.Millisecond
	orch := h.orchestrator()

	run, err := orch.Execute(context.Background(), domain, TriggerRequest{})
	require.Error(t, err)
	assert.True(t, IsRunTimeout(err))

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StatePostFailoverCheck, stepErr.State)

	assert.Equal(t, RunStatusTimedOut, run.Status)
	assert.Equal(t, StatePostFailoverCheck, run.FailedState)
	assert.False(t, orch.FailedOver(domain.Name), "a timed out run is not a completed failover")
	assert.True(t, h.tracker.HasActiveIncident(domain.Name))

	msg, ok := h.sink.last()
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, msg.Severity)
	assert.Equal(t, "Failover aborted: run timeout exceeded", msg.Subject)

	for _, step := range run.Steps {
		if step.State == StatePostFailoverCheck {
			assert.Contains(t, step.Error, "deadline exceeded")
		}
	}
}

func TestDROrchestrator_NotificationFailureDoesNotFailRun(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	h.health.set(domain.PrimaryTarget, false)
	h.sink.err = errors.New("sns throttled")
	orch := h.orchestrator()

	run, err := orch.Execute(context.Background(), domain, TriggerRequest{})
	require.NoError(t, err)
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.Contains(t, run.NotifyError, "sns throttled")
	assert.Equal(t, 1, h.observer.failed)
}

func TestDROrchestrator_RejectsConcurrentRunForDomain(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	h.health.set(domain.PrimaryTarget, false)
	h.dns.block = make(chan struct{})
	orch := h.orchestrator()

	started, err := orch.Start(context.Background(), domain, TriggerRequest{})
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, started.Status)

	id, busy := orch.InFlight(domain.Name)
	assert.True(t, busy)
	assert.Equal(t, started.ID, id)

	_, err = orch.Execute(context.Background(), domain, TriggerRequest{})
	assert.True(t, IsRunInProgress(err))

	// another domain is independent
	other := testDomain()
	other.Name = "api"
	other.PrimaryTarget = "https://primary.api.example.com/healthz"
	otherRun, err := orch.Execute(context.Background(), other, TriggerRequest{})
	require.NoError(t, err)
	assert.Equal(t, RunStatusNoop, otherRun.Status)

	close(h.dns.block)
	orch.Wait()

	_, busy = orch.InFlight(domain.Name)
	assert.False(t, busy)

	stored, err := h.store.GetRun(context.Background(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSucceeded, stored.Status)

	// exactly one promotion despite the rejected second trigger
	assert.Len(t, h.rec.Calls("rds:promote"), 1)
}

func TestDROrchestrator_ParallelTriggersStartOneRun(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	h.health.set(domain.PrimaryTarget, false)
	h.dns.block = make(chan struct{})
	orch := h.orchestrator()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, rejected := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.Start(context.Background(), domain, TriggerRequest{})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejected++
				return
			}
			accepted++
		}()
	}
	wg.Wait()
	close(h.dns.block)
	orch.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 9, rejected)
}

func TestDROrchestrator_RejectsEmptyDomain(t *testing.T) {
	h := newHarness()
	orch := h.orchestrator()

	_, err := orch.Execute(context.Background(), FailoverDomain{}, TriggerRequest{})
	assert.True(t, IsUnknownDomain(err))
}

func TestDROrchestrator_PersistsAndObservesRuns(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	h.health.set(domain.PrimaryTarget, false)
	orch := h.orchestrator()

	run, err := orch.Execute(context.Background(), domain, TriggerRequest{})
	require.NoError(t, err)

	stored, err := h.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.StatesVisited(), stored.StatesVisited())
	assert.Equal(t, RunStatusSucceeded, stored.Status)

	runs, err := h.store.ListRuns(context.Background(), domain.Name, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	assert.Equal(t, fullRun[:len(fullRun)-1], h.observer.steps)
	assert.Equal(t, []RunStatus{RunStatusSucceeded}, h.observer.runs)
}

func TestDROrchestrator_Events(t *testing.T) {
	h := newHarness()
	domain := testDomain()
	h.health.set(domain.PrimaryTarget, false)
	orch := h.orchestrator()

	var mu sync.Mutex
	seen := make([]DREventType, 0)
	orch.SetEventCallback(func(e *DREvent) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type)
	})

	_, err := orch.Execute(context.Background(), domain, TriggerRequest{})
	require.NoError(t, err)

	events := orch.GetEvents(10)
	require.Len(t, events, 2)
	assert.Equal(t, DREventFailoverStart, events[0].Type)
	assert.Equal(t, DREventFailoverDone, events[1].Type)
	assert.Equal(t, "us-west-2", events[1].Metadata["to_region"])

	orch.Rearm(domain.Name)
	assert.False(t, orch.FailedOver(domain.Name))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []DREventType{DREventFailoverStart, DREventFailoverDone, DREventRearmed}, seen)
}
