package ha

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ReplicaPromoter turns the secondary read replica into a writable primary.
type ReplicaPromoter struct {
	admin  DatabaseAdmin
	region string
}

// NewReplicaPromoter creates a promoter acting in the given region.
func NewReplicaPromoter(admin DatabaseAdmin, region string) *ReplicaPromoter {
	return &ReplicaPromoter{admin: admin, region: region}
}

// Promote requests promotion of the replica. An instance that is already a
// standalone primary is reported as promoted without calling the service.
func (p *ReplicaPromoter) Promote(ctx context.Context, identifier string) (PromotionResult, error) {
	result := PromotionResult{
		SourceIdentifier: identifier,
		TargetRegion:     p.region,
		Status:           PromotionPending,
	}

	state, err := p.admin.DescribeReplica(ctx, identifier)
	if err != nil && !errors.Is(err, ErrReplicaLagUnknown) {
		result.Status = PromotionFailed
		return result, &PromotionError{Identifier: identifier, Err: fmt.Errorf("%w: %w", ErrPromotionFailed, err)}
	}
	result.ReplicaLag = state.Lag

	if !state.IsReplica {
		result.Status = PromotionPromoted
		result.AlreadyPrimary = true
		return result, nil
	}

	if err := p.admin.PromoteReadReplica(ctx, identifier); err != nil {
		if errors.Is(err, ErrAlreadyPromoted) {
			result.Status = PromotionPromoted
			result.AlreadyPrimary = true
			return result, nil
		}
		result.Status = PromotionFailed
		if !errors.Is(err, ErrPromotionFailed) {
			err = fmt.Errorf("%w: %w", ErrPromotionFailed, err)
		}
		return result, &PromotionError{Identifier: identifier, Err: err}
	}

	return result, nil
}

// AwaitPromotion polls the instance until it reports as an available primary.
// Transient describe failures are retried until the timeout.
func (p *ReplicaPromoter) AwaitPromotion(ctx context.Context, identifier string, interval, timeout time.Duration) (PromotionResult, error) {
	result := PromotionResult{
		SourceIdentifier: identifier,
		TargetRegion:     p.region,
		Status:           PromotionPending,
	}

	err := pollUntil(ctx, interval, timeout, func(ctx context.Context) (bool, error) {
		state, err := p.admin.DescribeReplica(ctx, identifier)
		if err != nil && !errors.Is(err, ErrReplicaLagUnknown) {
			return false, err
		}
		return state.Available(), nil
	})
	if err != nil {
		result.Status = PromotionFailed
		return result, &PromotionError{Identifier: identifier, Err: fmt.Errorf("%w: %w", ErrPromotionFailed, err)}
	}

	result.Status = PromotionPromoted
	return result, nil
}
