package cloud

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

type fakeRDS struct {
	describeOut *rds.DescribeDBInstancesOutput
	describeErr error
	promoteErr  error
	promoted    []*rds.PromoteReadReplicaInput
}

func (f *fakeRDS) DescribeDBInstances(_ context.Context, _ *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	return f.describeOut, f.describeErr
}

func (f *fakeRDS) PromoteReadReplica(_ context.Context, in *rds.PromoteReadReplicaInput, _ ...func(*rds.Options)) (*rds.PromoteReadReplicaOutput, error) {
	f.promoted = append(f.promoted, in)
	if f.promoteErr != nil {
		return nil, f.promoteErr
	}
	return &rds.PromoteReadReplicaOutput{}, nil
}

type fakeMetrics struct {
	out    *cloudwatch.GetMetricDataOutput
	err    error
	inputs []*cloudwatch.GetMetricDataInput
}

func (f *fakeMetrics) GetMetricData(_ context.Context, in *cloudwatch.GetMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeECS struct {
	describeOut *ecs.DescribeServicesOutput
	describeErr error
	updateErr   error
	updates     []*ecs.UpdateServiceInput
}

func (f *fakeECS) DescribeServices(_ context.Context, _ *ecs.DescribeServicesInput, _ ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error) {
	return f.describeOut, f.describeErr
}

func (f *fakeECS) UpdateService(_ context.Context, in *ecs.UpdateServiceInput, _ ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error) {
	f.updates = append(f.updates, in)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &ecs.UpdateServiceOutput{}, nil
}

type fakeRoute53 struct {
	listOut   *route53.ListResourceRecordSetsOutput
	listErr   error
	changeOut *route53.ChangeResourceRecordSetsOutput
	changeErr error
	getOut    *route53.GetChangeOutput
	statusOut *route53.GetHealthCheckStatusOutput
	statusErr error
	changes   []*route53.ChangeResourceRecordSetsInput
}

func (f *fakeRoute53) ChangeResourceRecordSets(_ context.Context, in *route53.ChangeResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error) {
	f.changes = append(f.changes, in)
	return f.changeOut, f.changeErr
}

func (f *fakeRoute53) GetChange(_ context.Context, _ *route53.GetChangeInput, _ ...func(*route53.Options)) (*route53.GetChangeOutput, error) {
	return f.getOut, nil
}

func (f *fakeRoute53) ListResourceRecordSets(_ context.Context, _ *route53.ListResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error) {
	if f.listOut == nil && f.listErr == nil {
		return &route53.ListResourceRecordSetsOutput{}, nil
	}
	return f.listOut, f.listErr
}

func (f *fakeRoute53) GetHealthCheckStatus(_ context.Context, _ *route53.GetHealthCheckStatusInput, _ ...func(*route53.Options)) (*route53.GetHealthCheckStatusOutput, error) {
	return f.statusOut, f.statusErr
}

type fakeSNS struct {
	published []*sns.PublishInput
	err       error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.published = append(f.published, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{}, nil
}

// fakeSSM serves pages keyed by NextToken; the empty token is the first page.
type fakeSSM struct {
	pages map[string]*ssm.GetParametersByPathOutput
	err   error
}

func (f *fakeSSM) GetParametersByPath(_ context.Context, in *ssm.GetParametersByPathInput, _ ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	token := ""
	if in.NextToken != nil {
		token = *in.NextToken
	}
	return f.pages[token], nil
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	inputs  []*s3.PutObjectInput
}
