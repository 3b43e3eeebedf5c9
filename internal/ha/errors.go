package ha

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the failover steps and their adapters.
var (
	// ErrAlreadyPromoted is returned by a database admin when the target is
	// already a standalone primary. Callers treat it as success.
	ErrAlreadyPromoted = errors.New("replica already promoted")

	// ErrPromotionFailed indicates the replica could not be promoted
	ErrPromotionFailed = errors.New("replica promotion failed")

	// ErrReplicaLagUnknown is returned alongside a valid ReplicaState when the
	// replica lag metric could not be read. The state is still usable.
	ErrReplicaLagUnknown = errors.New("replica lag unknown")

	// ErrServiceNotFound indicates the secondary service does not exist
	ErrServiceNotFound = errors.New("service not found")

	// ErrScalingTimeout indicates the service never reached its desired count
	ErrScalingTimeout = errors.New("scaling timed out")

	// ErrRecordConflict indicates a manual override on the record
	ErrRecordConflict = errors.New("dns record conflict")

	// ErrRunInProgress indicates a run is already active for the domain
	ErrRunInProgress = errors.New("failover run already in progress")

	// ErrRunTimeout indicates the run exceeded its overall deadline
	ErrRunTimeout = errors.New("failover run timed out")

	// ErrUnknownDomain indicates the domain is not configured
	ErrUnknownDomain = errors.New("unknown failover domain")

	// ErrRunNotFound indicates no stored run matches the identifier
	ErrRunNotFound = errors.New("failover run not found")
)

// HealthCheckError describes a probe that could not reach its target. It is
// transient: callers retry by polling again.
type HealthCheckError struct {
	Target string
	Err    error
}

func (e *HealthCheckError) Error() string {
	return fmt.Sprintf("health check %s: %v", e.Target, e.Err)
}

func (e *HealthCheckError) Unwrap() error { return e.Err }

// PromotionError is fatal to a run unless it wraps ErrAlreadyPromoted.
type PromotionError struct {
	Identifier string
	Err        error
}

func (e *PromotionError) Error() string {
	return fmt.Sprintf("promote %s: %v", e.Identifier, e.Err)
}

func (e *PromotionError) Unwrap() error { return e.Err }

// ScalingError is fatal to a run.
type ScalingError struct {
	Cluster string
	Service string
	Err     error
}

func (e *ScalingError) Error() string {
	return fmt.Sprintf("scale %s/%s: %v", e.Cluster, e.Service, e.Err)
}

func (e *ScalingError) Unwrap() error { return e.Err }

// DNSError is fatal to a run. A conflict needs an operator.
type DNSError struct {
	Zone   string
	Record string
	Err    error
}

func (e *DNSError) Error() string {
	return fmt.Sprintf("dns %s in %s: %v", e.Record, e.Zone, e.Err)
}

func (e *DNSError) Unwrap() error { return e.Err }

// NotificationError is logged and recorded, never fatal.
type NotificationError struct {
	Subject string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %q: %v", e.Subject, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// StepError ties a fatal error to the state that produced it.
type StepError struct {
	State RunState
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// IsRunInProgress checks if err is or wraps ErrRunInProgress
func IsRunInProgress(err error) bool {
	return errors.Is(err, ErrRunInProgress)
}

// IsUnknownDomain checks if err is or wraps ErrUnknownDomain
func IsUnknownDomain(err error) bool {
	return errors.Is(err, ErrUnknownDomain)
}

// IsRecordConflict checks if err is or wraps ErrRecordConflict
func IsRecordConflict(err error) bool {
	return errors.Is(err, ErrRecordConflict)
}

// IsRunTimeout checks if err is or wraps ErrRunTimeout
func IsRunTimeout(err error) bool {
	return errors.Is(err, ErrRunTimeout)
}
