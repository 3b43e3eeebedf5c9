package cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/FairForge/warmstandby/internal/ha"
)

// RDSAPI is the subset of the RDS client used here
type RDSAPI interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	PromoteReadReplica(ctx context.Context, params *rds.PromoteReadReplicaInput, optFns ...func(*rds.Options)) (*rds.PromoteReadReplicaOutput, error)
}

// MetricsAPI is the subset of the CloudWatch client used to read replica lag
type MetricsAPI interface {
	GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

// RDS publishes ReplicaLag once a minute; five minutes tolerates a late datapoint.
const lagWindow = 5 * time.Minute

// RDSAdmin implements ha.DatabaseAdmin
type RDSAdmin struct {
	client          RDSAPI
	metrics         MetricsAPI
	backupRetention int32
	now             func() time.Time
}

// NewRDSAdmin creates the adapter. Replica lag is read from metrics, which
// must act in the same region as client. backupRetention is applied to the
// promoted instance; zero keeps the service default.
func NewRDSAdmin(client RDSAPI, metrics MetricsAPI, backupRetention int32) *RDSAdmin {
	return &RDSAdmin{client: client, metrics: metrics, backupRetention: backupRetention, now: time.Now}
}

// DescribeReplica reports the instance status, whether it still follows a
// source instance and, for replicas, the latest ReplicaLag datapoint. When
// the lag cannot be read the state is returned with ha.ErrReplicaLagUnknown.
func (a *RDSAdmin) DescribeReplica(ctx context.Context, identifier string) (ha.ReplicaState, error) {
	out, err := a.client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(identifier),
	})
	if err != nil {
		var notFound *types.DBInstanceNotFoundFault
		if errors.As(err, &notFound) {
			return ha.ReplicaState{}, fmt.Errorf("describe db instance %s: %w: %w", identifier, ha.ErrPromotionFailed, err)
		}
		return ha.ReplicaState{}, fmt.Errorf("describe db instance %s: %w", identifier, err)
	}
	if len(out.DBInstances) == 0 {
		return ha.ReplicaState{}, fmt.Errorf("describe db instance %s: no instances returned", identifier)
	}

	instance := out.DBInstances[0]
	state := ha.ReplicaState{
		Identifier: aws.ToString(instance.DBInstanceIdentifier),
		Status:     aws.ToString(instance.DBInstanceStatus),
		IsReplica:  aws.ToString(instance.ReadReplicaSourceDBInstanceIdentifier) != "",
	}
	if !state.IsReplica {
		return state, nil
	}

	lag, err := a.replicaLag(ctx, identifier)
	if err != nil {
		return state, fmt.Errorf("replica lag of %s: %w: %w", identifier, ha.ErrReplicaLagUnknown, err)
	}
	state.Lag = lag
	return state, nil
}

func (a *RDSAdmin) replicaLag(ctx context.Context, identifier string) (time.Duration, error) {
	if a.metrics == nil {
		return 0, errors.New("no metrics client")
	}

	end := a.now()
	out, err := a.metrics.GetMetricData(ctx, &cloudwatch.GetMetricDataInput{
		StartTime: aws.Time(end.Add(-lagWindow)),
		EndTime:   aws.Time(end),
		ScanBy:    cwtypes.ScanByTimestampDescending,
		MetricDataQueries: []cwtypes.MetricDataQuery{{
			Id: aws.String("lag"),
			MetricStat: &cwtypes.MetricStat{
				Metric: &cwtypes.Metric{
					Namespace:  aws.String("AWS/RDS"),
					MetricName: aws.String("ReplicaLag"),
					Dimensions: []cwtypes.Dimension{{
						Name:  aws.String("DBInstanceIdentifier"),
						Value: aws.String(identifier),
					}},
				},
				Period: aws.Int32(60),
				Stat:   aws.String("Maximum"),
			},
		}},
	})
	if err != nil {
		return 0, err
	}

	for _, result := range out.MetricDataResults {
		if aws.ToString(result.Id) != "lag" || len(result.Values) == 0 {
			continue
		}
		// newest first
		seconds := result.Values[0]
		if seconds < 0 {
			return 0, fmt.Errorf("negative lag %v", seconds)
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}
	return 0, errors.New("no ReplicaLag datapoints")
}

// PromoteReadReplica starts promotion. A standalone instance maps to
// ha.ErrAlreadyPromoted.
func (a *RDSAdmin) PromoteReadReplica(ctx context.Context, identifier string) error {
	input := &rds.PromoteReadReplicaInput{
		DBInstanceIdentifier: aws.String(identifier),
	}
	if a.backupRetention > 0 {
		input.BackupRetentionPeriod = aws.Int32(a.backupRetention)
	}

	_, err := a.client.PromoteReadReplica(ctx, input)
	if err == nil {
		return nil
	}

	var invalidState *types.InvalidDBInstanceStateFault
	if errors.As(err, &invalidState) && strings.Contains(strings.ToLower(invalidState.ErrorMessage()), "not a read replica") {
		return fmt.Errorf("promote %s: %w", identifier, ha.ErrAlreadyPromoted)
	}
	return fmt.Errorf("promote %s: %w: %w", identifier, ha.ErrPromotionFailed, err)
}
