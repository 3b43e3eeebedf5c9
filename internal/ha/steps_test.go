package ha

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollUntil(t *testing.T) {
	t.Run("returns once done", func(t *testing.T) {
		calls := 0
		err := pollUntil(context.Background(), time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		err := pollUntil(context.Background(), time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
			calls++
			return false, fmt.Errorf("describe app-db: %w", ErrPromotionFailed)
		})
		assert.ErrorIs(t, err, ErrPromotionFailed)
		assert.NotErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		err := pollUntil(context.Background(), time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
			calls++
			if calls < 3 {
				return false, errors.New("throttled")
			}
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("keeps the last transient error on timeout", func(t *testing.T) {
		boom := errors.New("boom")
		err := pollUntil(context.Background(), time.Millisecond, 20*time.Millisecond, func(ctx context.Context) (bool, error) {
			return false, boom
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("times out with deadline exceeded", func(t *testing.T) {
		err := pollUntil(context.Background(), time.Millisecond, 20*time.Millisecond, func(ctx context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := pollUntil(ctx, time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestReplicaPromoter_Promote(t *testing.T) {
	t.Run("promotes a replica", func(t *testing.T) {
		rec := &recorder{}
		db := newFakeDatabase(rec)
		p := NewReplicaPromoter(db, "us-west-2")

		res, err := p.Promote(context.Background(), "app-db-replica")
		require.NoError(t, err)
		assert.Equal(t, PromotionPending, res.Status)
		assert.Equal(t, "us-west-2", res.TargetRegion)
		assert.Equal(t, 2*time.Second, res.ReplicaLag)
		assert.Equal(t, []string{"rds:describe", "rds:promote"}, rec.Calls())
	})

	t.Run("already primary makes no promote call", func(t *testing.T) {
		rec := &recorder{}
		db := newFakeDatabase(rec)
		db.isReplica = false
		p := NewReplicaPromoter(db, "us-west-2")

		res, err := p.Promote(context.Background(), "app-db-replica")
		require.NoError(t, err)
		assert.Equal(t, PromotionPromoted, res.Status)
		assert.True(t, res.AlreadyPrimary)
		assert.Empty(t, rec.Calls("rds:promote"))
	})

	t.Run("treats already promoted error as success", func(t *testing.T) {
		rec := &recorder{}
		db := newFakeDatabase(rec)
		db.promoteErr = ErrAlreadyPromoted
		p := NewReplicaPromoter(db, "us-west-2")

		res, err := p.Promote(context.Background(), "app-db-replica")
		require.NoError(t, err)
		assert.True(t, res.AlreadyPrimary)
	})

	t.Run("wraps service failures", func(t *testing.T) {
		rec := &recorder{}
		db := newFakeDatabase(rec)
		db.promoteErr = errors.New("access denied")
		p := NewReplicaPromoter(db, "us-west-2")

		res, err := p.Promote(context.Background(), "app-db-replica")
		require.Error(t, err)
		assert.Equal(t, PromotionFailed, res.Status)
		assert.ErrorIs(t, err, ErrPromotionFailed)

		var perr *PromotionError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "app-db-replica", perr.Identifier)
	})

	t.Run("unknown lag does not block promotion", func(t *testing.T) {
		rec := &recorder{}
		db := newFakeDatabase(rec)
		db.lagUnknown = true
		p := NewReplicaPromoter(db, "us-west-2")

		res, err := p.Promote(context.Background(), "app-db-replica")
		require.NoError(t, err)
		assert.Equal(t, PromotionPending, res.Status)
		assert.Zero(t, res.ReplicaLag)
		assert.Equal(t, []string{"rds:describe", "rds:promote"}, rec.Calls())
	})

	t.Run("describe failure is fatal", func(t *testing.T) {
		rec := &recorder{}
		db := newFakeDatabase(rec)
		db.describeErr = errors.New("DBInstanceNotFound")
		p := NewReplicaPromoter(db, "us-west-2")

		_, err := p.Promote(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrPromotionFailed)
		assert.Empty(t, rec.Calls("rds:promote"))
	})
}

func TestReplicaPromoter_AwaitPromotion(t *testing.T) {
	t.Run("waits until available primary", func(t *testing.T) {
		rec := &recorder{}
		db := newFakeDatabase(rec)
		p := NewReplicaPromoter(db, "us-west-2")

		_, err := p.Promote(context.Background(), "app-db-replica")
		require.NoError(t, err)

		res, err := p.AwaitPromotion(context.Background(), "app-db-replica", time.Millisecond, time.Second)
		require.NoError(t, err)
		assert.Equal(t, PromotionPromoted, res.Status)
		assert.GreaterOrEqual(t, len(rec.Calls("rds:describe")), 3)
	})

	t.Run("retries transient describe failures", func(t *testing.T) {
		rec := &recorder{}
		db := newFakeDatabase(rec)
		db.lagUnknown = true
		p := NewReplicaPromoter(db, "us-west-2")

		_, err := p.Promote(context.Background(), "app-db-replica")
		require.NoError(t, err)
		db.flaky = 2

		res, err := p.AwaitPromotion(context.Background(), "app-db-replica", time.Millisecond, time.Second)
		require.NoError(t, err)
		assert.Equal(t, PromotionPromoted, res.Status)
		assert.Zero(t, db.flaky)
	})

	t.Run("missing instance stops polling", func(t *testing.T) {
		rec := &recorder{}
		db := newFakeDatabase(rec)
		db.describeErr = fmt.Errorf("describe db instance app-db-replica: %w", ErrPromotionFailed)
		p := NewReplicaPromoter(db, "us-west-2")

		_, err := p.AwaitPromotion(context.Background(), "app-db-replica", time.Millisecond, time.Second)
		assert.ErrorIs(t, err, ErrPromotionFailed)
		assert.NotErrorIs(t, err, context.DeadlineExceeded)
		assert.Len(t, rec.Calls("rds:describe"), 1)
	})

	t.Run("times out while still a replica", func(t *testing.T) {
		rec := &recorder{}
		db := newFakeDatabase(rec)
		p := NewReplicaPromoter(db, "us-west-2")

		res, err := p.AwaitPromotion(context.Background(), "app-db-replica", time.Millisecond, 20*time.Millisecond)
		require.Error(t, err)
		assert.Equal(t, PromotionFailed, res.Status)
		assert.ErrorIs(t, err, ErrPromotionFailed)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestCapacityScaler(t *testing.T) {
	t.Run("requests and waits for capacity", func(t *testing.T) {
		rec := &recorder{}
		compute := newFakeCompute(rec)
		s := NewCapacityScaler(compute)

		res, err := s.Scale(context.Background(), "app-secondary", "web", 3)
		require.NoError(t, err)
		assert.Equal(t, ScaleRequested, res.Status)

		res, err = s.AwaitCapacity(context.Background(), "app-secondary", "web", 3, time.Millisecond, time.Second)
		require.NoError(t, err)
		assert.Equal(t, ScaleReady, res.Status)
		assert.Equal(t, int32(3), res.RunningCount)
		assert.Equal(t, []string{"ecs:update:3"}, rec.Calls("ecs:update"))
	})

	t.Run("unchanged when desired count matches", func(t *testing.T) {
		rec := &recorder{}
		compute := newFakeCompute(rec)
		compute.desired = 3
		s := NewCapacityScaler(compute)

		res, err := s.Scale(context.Background(), "app-secondary", "web", 3)
		require.NoError(t, err)
		assert.Equal(t, ScaleUnchanged, res.Status)
		assert.Empty(t, rec.Calls("ecs:update"))
	})

	t.Run("missing service is fatal", func(t *testing.T) {
		rec := &recorder{}
		compute := newFakeCompute(rec)
		compute.describeErr = ErrServiceNotFound
		s := NewCapacityScaler(compute)

		res, err := s.Scale(context.Background(), "app-secondary", "web", 3)
		require.Error(t, err)
		assert.Equal(t, ScaleFailed, res.Status)
		assert.ErrorIs(t, err, ErrServiceNotFound)

		var serr *ScalingError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "web", serr.Service)
	})

	t.Run("retries transient describe failures", func(t *testing.T) {
		rec := &recorder{}
		compute := newFakeCompute(rec)
		compute.desired = 2
		compute.flaky = 2
		s := NewCapacityScaler(compute)

		res, err := s.AwaitCapacity(context.Background(), "app-secondary", "web", 2, time.Millisecond, time.Second)
		require.NoError(t, err)
		assert.Equal(t, ScaleReady, res.Status)
		assert.Equal(t, int32(2), res.RunningCount)
	})

	t.Run("missing service stops polling", func(t *testing.T) {
		rec := &recorder{}
		compute := newFakeCompute(rec)
		compute.describeErr = ErrServiceNotFound
		s := NewCapacityScaler(compute)

		_, err := s.AwaitCapacity(context.Background(), "app-secondary", "web", 2, time.Millisecond, time.Second)
		assert.ErrorIs(t, err, ErrServiceNotFound)
		assert.NotErrorIs(t, err, ErrScalingTimeout)
		assert.Len(t, rec.Calls("ecs:describe"), 1)
	})

	t.Run("times out when tasks never start", func(t *testing.T) {
		rec := &recorder{}
		compute := newFakeCompute(rec)
		compute.stuck = true
		compute.desired = 3
		s := NewCapacityScaler(compute)

		res, err := s.AwaitCapacity(context.Background(), "app-secondary", "web", 3, time.Millisecond, 20*time.Millisecond)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrScalingTimeout)
		assert.Contains(t, err.Error(), "0/3")
		assert.Equal(t, ScaleFailed, res.Status)
	})
}

func TestDNSCutover(t *testing.T) {
	req := testDomain().DNSRequest()

	t.Run("upserts and waits for sync", func(t *testing.T) {
		rec := &recorder{}
		dns := newFakeDNS(rec)
		dns.syncAfter = 3
		c := NewDNSCutover(dns)

		res, err := c.Upsert(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, DNSPending, res.Status)
		assert.Equal(t, "/change/C123", res.ChangeID)

		res, err = c.AwaitSync(context.Background(), res, time.Millisecond, time.Second)
		require.NoError(t, err)
		assert.Equal(t, DNSInSync, res.Status)
		assert.Len(t, rec.Calls("dns:get-change"), 3)
	})

	t.Run("rejects incomplete request", func(t *testing.T) {
		rec := &recorder{}
		c := NewDNSCutover(newFakeDNS(rec))

		res, err := c.Upsert(context.Background(), DNSCutoverRequest{ZoneIdentifier: "Z1"})
		require.Error(t, err)
		assert.Equal(t, DNSFailed, res.Status)
		assert.Empty(t, rec.Calls())
	})

	t.Run("surfaces conflicts", func(t *testing.T) {
		rec := &recorder{}
		dns := newFakeDNS(rec)
		dns.upsertErr = ErrRecordConflict
		c := NewDNSCutover(dns)

		_, err := c.Upsert(context.Background(), req)
		assert.True(t, IsRecordConflict(err))

		var derr *DNSError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, req.RecordName, derr.Record)
	})

	t.Run("empty change id is in sync", func(t *testing.T) {
		c := NewDNSCutover(newFakeDNS(&recorder{}))
		res, err := c.AwaitSync(context.Background(), DNSCutoverResult{}, time.Millisecond, time.Second)
		require.NoError(t, err)
		assert.Equal(t, DNSInSync, res.Status)
	})
}
