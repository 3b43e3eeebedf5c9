package ha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// recorder keeps the order of calls across all fakes of one test.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

// Calls returns recorded calls, optionally keeping only those with prefix.
func (r *recorder) Calls(prefixes ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		if len(prefixes) == 0 {
			out = append(out, c)
			continue
		}
		for _, p := range prefixes {
			if strings.HasPrefix(c, p) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// mutations filters out read-only calls.
func (r *recorder) mutations() []string {
	return r.Calls("rds:promote", "ecs:update", "dns:upsert", "sns:publish")
}

type fakeHealth struct {
	mu      sync.Mutex
	rec     *recorder
	healthy map[string]bool
	hang    map[string]bool
}

func newFakeHealth(rec *recorder) *fakeHealth {
	return &fakeHealth{rec: rec, healthy: make(map[string]bool), hang: make(map[string]bool)}
}

// stall makes checks of target block until the context ends.
func (f *fakeHealth) stall(target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hang[target] = true
}

func (f *fakeHealth) set(target string, healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy[target] = healthy
}

func (f *fakeHealth) Check(ctx context.Context, target string) HealthCheckResult {
	f.rec.record("health:" + target)

	f.mu.Lock()
	healthy, ok := f.healthy[target]
	stalled := f.hang[target]
	f.mu.Unlock()

	if stalled {
		<-ctx.Done()
		return HealthCheckResult{Target: target, CheckedAt: time.Now(), Error: ctx.Err().Error()}
	}
	if !ok {
		healthy = true
	}

	result := HealthCheckResult{
		Target:    target,
		Healthy:   healthy,
		Latency:   5 * time.Millisecond,
		CheckedAt: time.Now(),
	}
	if !healthy {
		result.Error = "status 503"
	}
	return result
}

type fakeDatabase struct {
	mu          sync.Mutex
	rec         *recorder
	isReplica   bool
	status      string
	lag         time.Duration
	promoting   bool
	pollsLeft   int
	describeErr error
	flaky       int
	lagUnknown  bool
	promoteErr  error
}

func newFakeDatabase(rec *recorder) *fakeDatabase {
	return &fakeDatabase{rec: rec, isReplica: true, status: "available", lag: 2 * time.Second, pollsLeft: 2}
}

func (f *fakeDatabase) DescribeReplica(ctx context.Context, identifier string) (ReplicaState, error) {
	f.rec.record("rds:describe")

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.describeErr != nil {
		return ReplicaState{}, f.describeErr
	}
	if f.flaky > 0 {
		f.flaky--
		return ReplicaState{}, errors.New("Throttling: rate exceeded")
	}
	if f.promoting {
		f.pollsLeft--
		if f.pollsLeft <= 0 {
			f.promoting = false
			f.isReplica = false
			f.status = "available"
		}
	}
	state := ReplicaState{Identifier: identifier, Status: f.status, IsReplica: f.isReplica, Lag: f.lag}
	if f.lagUnknown && f.isReplica {
		state.Lag = 0
		return state, ErrReplicaLagUnknown
	}
	return state, nil
}

func (f *fakeDatabase) PromoteReadReplica(ctx context.Context, identifier string) error {
	f.rec.record("rds:promote")

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.promoteErr != nil {
		return f.promoteErr
	}
	f.promoting = true
	f.status = "modifying"
	return nil
}

type fakeCompute struct {
	mu          sync.Mutex
	rec         *recorder
	desired     int32
	running     int32
	stuck       bool
	describeErr error
	flaky       int
	updateErr   error
}

func newFakeCompute(rec *recorder) *fakeCompute {
	return &fakeCompute{rec: rec}
}

func (f *fakeCompute) DescribeService(ctx context.Context, cluster, service string) (ServiceState, error) {
	f.rec.record("ecs:describe")

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.describeErr != nil {
		return ServiceState{}, f.describeErr
	}
	if f.flaky > 0 {
		f.flaky--
		return ServiceState{}, errors.New("ServerException: internal error")
	}
	if !f.stuck && f.running < f.desired {
		f.running++
	}
	return ServiceState{Cluster: cluster, Service: service, Status: "ACTIVE", DesiredCount: f.desired, RunningCount: f.running}, nil
}

func (f *fakeCompute) UpdateDesiredCount(ctx context.Context, cluster, service string, desired int32) error {
	f.rec.record(fmt.Sprintf("ecs:update:%d", desired))

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return f.updateErr
	}
	f.desired = desired
	return nil
}

type fakeDNS struct {
	mu        sync.Mutex
	rec       *recorder
	records   map[string]string
	upsertErr error
	syncAfter int
	polls     int
	block     chan struct{}
}

func newFakeDNS(rec *recorder) *fakeDNS {
	return &fakeDNS{rec: rec, records: make(map[string]string), syncAfter: 1}
}

func (f *fakeDNS) UpsertAlias(ctx context.Context, req DNSCutoverRequest) (string, error) {
	f.rec.record("dns:upsert:" + req.NewTarget)

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.upsertErr != nil {
		return "", f.upsertErr
	}
	f.records[req.RecordName] = req.NewTarget
	f.polls = 0
	return "/change/C123", nil
}

func (f *fakeDNS) ChangeInSync(ctx context.Context, changeID string) (bool, error) {
	f.rec.record("dns:get-change")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++
	return f.polls >= f.syncAfter, nil
}

func (f *fakeDNS) target(record string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[record]
}

type fakeSink struct {
	mu       sync.Mutex
	rec      *recorder
	err      error
	messages []NotificationMessage
}

func (f *fakeSink) Publish(ctx context.Context, msg NotificationMessage) error {
	f.rec.record("sns:publish:" + string(msg.Severity))

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeSink) last() (NotificationMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return NotificationMessage{}, false
	}
	return f.messages[len(f.messages)-1], true
}

// MockSink is a testify mock of NotificationSink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(ctx context.Context, msg NotificationMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type recordingObserver struct {
	mu     sync.Mutex
	steps  []RunState
	runs   []RunStatus
	failed int
}

func (o *recordingObserver) ObserveStep(domain string, state RunState, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, state)
}

func (o *recordingObserver) ObserveRun(run *Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, run.Status)
}

func (o *recordingObserver) ObserveNotificationFailure(domain string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed++
}

// harness wires fakes into an orchestrator
type harness struct {
	rec      *recorder
	health   *fakeHealth
	db       *fakeDatabase
	compute  *fakeCompute
	dns      *fakeDNS
	sink     *fakeSink
	store    *MemoryRunStore
	tracker  *RTORPOTracker
	observer *recordingObserver
	config   *DRConfig
}

func newHarness() *harness {
	rec := &recorder{}
	tracker, _ := NewRTORPOTracker(GetTierDefaults(TierWarmStandby))
	return &harness{
		rec:      rec,
		health:   newFakeHealth(rec),
		db:       newFakeDatabase(rec),
		compute:  newFakeCompute(rec),
		dns:      newFakeDNS(rec),
		sink:     &fakeSink{rec: rec},
		store:    NewMemoryRunStore(0),
		tracker:  tracker,
		observer: &recordingObserver{},
		config:   fastDRConfig(),
	}
}

func (h *harness) orchestrator() *DROrchestrator {
	orch, err := NewDROrchestrator(h.config, Dependencies{
		Health:   h.health,
		Database: h.db,
		Compute:  h.compute,
		DNS:      h.dns,
		Sink:     h.sink,
		Store:    h.store,
		Tracker:  h.tracker,
		Observer: h.observer,
	}, nil)
	if err != nil {
		panic(err)
	}
	return orch
}

func fastDRConfig() *DRConfig {
	return &DRConfig{
		RunTimeout:       5 * time.Second,
		PollInterval:     time.Millisecond,
		PromotionTimeout: time.Second,
		ScalingTimeout:   time.Second,
		DNSTimeout:       time.Second,
		NotifyTimeout:    time.Second,
	}
}

func testDomain() FailoverDomain {
	return FailoverDomain{
		Name:               "app",
		PrimaryRegion:      "ap-southeast-2",
		SecondaryRegion:    "us-west-2",
		PrimaryTarget:      "https://primary.app.example.com/healthz",
		SecondaryTarget:    "https://secondary.app.example.com/healthz",
		ReplicaIdentifier:  "app-db-replica",
		Cluster:            "app-secondary",
		Service:            "web",
		DesiredCount:       4,
		HostedZoneID:       "Z123",
		RecordName:         "app.example.com",
		SecondaryAliasDNS:  "secondary-alb.us-west-2.elb.amazonaws.com",
		SecondaryAliasZone: "Z1H1FL5HABSF5",
		AutoFailover:       true,
	}
}
