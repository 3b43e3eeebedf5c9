package ha

import (
	"context"
	"time"
)

// HealthSource probes an endpoint. Implementations must not return errors for
// ordinary network failures; those map to an unhealthy result.
type HealthSource interface {
	Check(ctx context.Context, target string) HealthCheckResult
}

// ReplicaState is what the database service reports about an instance.
type ReplicaState struct {
	Identifier string
	Status     string
	IsReplica  bool
	Lag        time.Duration
}

// Available reports whether the instance accepts writes as a standalone primary.
func (s ReplicaState) Available() bool {
	return !s.IsReplica && s.Status == "available"
}

// DatabaseAdmin is the slice of the relational database service the
// promoter needs. DescribeReplica may return a usable state together with
// ErrReplicaLagUnknown.
type DatabaseAdmin interface {
	DescribeReplica(ctx context.Context, identifier string) (ReplicaState, error)
	PromoteReadReplica(ctx context.Context, identifier string) error
}

// ServiceState is what the compute orchestrator reports about a service.
type ServiceState struct {
	Cluster      string
	Service      string
	Status       string
	DesiredCount int32
	RunningCount int32
}

// ComputeAdmin is the slice of the container service the scaler needs.
type ComputeAdmin interface {
	DescribeService(ctx context.Context, cluster, service string) (ServiceState, error)
	UpdateDesiredCount(ctx context.Context, cluster, service string, desired int32) error
}

// DNSAdmin is the slice of the DNS provider the cutover step needs.
type DNSAdmin interface {
	UpsertAlias(ctx context.Context, req DNSCutoverRequest) (changeID string, err error)
	ChangeInSync(ctx context.Context, changeID string) (bool, error)
}

// NotificationSink publishes a message to an operator channel.
type NotificationSink interface {
	Publish(ctx context.Context, msg NotificationMessage) error
}

// RunStore persists run records.
type RunStore interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, domain string, limit int) ([]*Run, error)
}

// RunArchiver keeps a durable copy of finished runs.
type RunArchiver interface {
	Archive(ctx context.Context, run *Run) error
}

// Observer receives timing data for steps and runs.
type Observer interface {
	ObserveStep(domain string, state RunState, duration time.Duration, err error)
	ObserveRun(run *Run)
	ObserveNotificationFailure(domain string)
}

type nopObserver struct{}

func (nopObserver) ObserveStep(string, RunState, time.Duration, error) {}
func (nopObserver) ObserveRun(*Run)                                    {}
func (nopObserver) ObserveNotificationFailure(string)                  {}
