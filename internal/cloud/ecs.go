package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/FairForge/warmstandby/internal/ha"
)

// ECSAPI is the subset of the ECS client used here
type ECSAPI interface {
	DescribeServices(ctx context.Context, params *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
	UpdateService(ctx context.Context, params *ecs.UpdateServiceInput, optFns ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error)
}

// ECSAdmin implements ha.ComputeAdmin
type ECSAdmin struct {
	client ECSAPI
}

func NewECSAdmin(client ECSAPI) *ECSAdmin {
	return &ECSAdmin{client: client}
}

// DescribeService returns desired and running counts. Missing or inactive
// services map to ha.ErrServiceNotFound.
func (a *ECSAdmin) DescribeService(ctx context.Context, cluster, service string) (ha.ServiceState, error) {
	out, err := a.client.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(cluster),
		Services: []string{service},
	})
	if err != nil {
		return ha.ServiceState{}, mapECSError(cluster, service, err)
	}

	for _, f := range out.Failures {
		if aws.ToString(f.Reason) == "MISSING" {
			return ha.ServiceState{}, fmt.Errorf("describe service %s/%s: %w", cluster, service, ha.ErrServiceNotFound)
		}
		return ha.ServiceState{}, fmt.Errorf("describe service %s/%s: %s", cluster, service, aws.ToString(f.Reason))
	}
	if len(out.Services) == 0 {
		return ha.ServiceState{}, fmt.Errorf("describe service %s/%s: %w", cluster, service, ha.ErrServiceNotFound)
	}

	svc := out.Services[0]
	status := aws.ToString(svc.Status)
	if status == "INACTIVE" {
		return ha.ServiceState{}, fmt.Errorf("describe service %s/%s: inactive: %w", cluster, service, ha.ErrServiceNotFound)
	}

	return ha.ServiceState{
		Cluster:      cluster,
		Service:      aws.ToString(svc.ServiceName),
		Status:       status,
		DesiredCount: svc.DesiredCount,
		RunningCount: svc.RunningCount,
	}, nil
}

// UpdateDesiredCount sets the service desired count
func (a *ECSAdmin) UpdateDesiredCount(ctx context.Context, cluster, service string, desired int32) error {
	_, err := a.client.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:      aws.String(cluster),
		Service:      aws.String(service),
		DesiredCount: aws.Int32(desired),
	})
	if err != nil {
		return mapECSError(cluster, service, err)
	}
	return nil
}

func mapECSError(cluster, service string, err error) error {
	var notFound *types.ServiceNotFoundException
	var notActive *types.ServiceNotActiveException
	var noCluster *types.ClusterNotFoundException
	switch {
	case errors.As(err, &notFound), errors.As(err, &notActive), errors.As(err, &noCluster):
		return fmt.Errorf("service %s/%s: %w: %w", cluster, service, ha.ErrServiceNotFound, err)
	default:
		return fmt.Errorf("service %s/%s: %w", cluster, service, err)
	}
}
