package ha

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CapacityScaler sets the desired task count of the secondary service.
type CapacityScaler struct {
	admin ComputeAdmin
}

// NewCapacityScaler creates a scaler
func NewCapacityScaler(admin ComputeAdmin) *CapacityScaler {
	return &CapacityScaler{admin: admin}
}

// Scale requests the desired count. When the service already wants that many
// tasks no update is sent.
func (s *CapacityScaler) Scale(ctx context.Context, cluster, service string, desired int32) (ScaleResult, error) {
	result := ScaleResult{
		ClusterIdentifier: cluster,
		ServiceIdentifier: service,
		DesiredCount:      desired,
	}

	state, err := s.admin.DescribeService(ctx, cluster, service)
	if err != nil {
		result.Status = ScaleFailed
		return result, &ScalingError{Cluster: cluster, Service: service, Err: err}
	}
	result.RunningCount = state.RunningCount

	if state.DesiredCount == desired {
		result.Status = ScaleUnchanged
		return result, nil
	}

	if err := s.admin.UpdateDesiredCount(ctx, cluster, service, desired); err != nil {
		result.Status = ScaleFailed
		return result, &ScalingError{Cluster: cluster, Service: service, Err: err}
	}

	result.Status = ScaleRequested
	return result, nil
}

// AwaitCapacity polls until the running count reaches the desired count.
// Transient describe failures are retried until the timeout.
func (s *CapacityScaler) AwaitCapacity(ctx context.Context, cluster, service string, desired int32, interval, timeout time.Duration) (ScaleResult, error) {
	result := ScaleResult{
		ClusterIdentifier: cluster,
		ServiceIdentifier: service,
		DesiredCount:      desired,
	}

	err := pollUntil(ctx, interval, timeout, func(ctx context.Context) (bool, error) {
		state, err := s.admin.DescribeService(ctx, cluster, service)
		if err != nil {
			return false, err
		}
		result.RunningCount = state.RunningCount
		return state.RunningCount >= desired, nil
	})
	if err != nil {
		result.Status = ScaleFailed
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %d/%d tasks running: %w", ErrScalingTimeout, result.RunningCount, desired, err)
		}
		return result, &ScalingError{Cluster: cluster, Service: service, Err: err}
	}

	result.Status = ScaleReady
	return result, nil
}
