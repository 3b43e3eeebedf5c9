// Package cloud implements the failover ports on AWS.
package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Route 53 is a global service served from us-east-1.
const route53Region = "us-east-1"

// Settings selects regions and credentials for the AWS clients.
type Settings struct {
	PrimaryRegion   string
	SecondaryRegion string
	// Static credentials; when empty the default chain is used.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// Endpoint overrides every service endpoint (localstack and tests).
	Endpoint string
}

// Clients groups the service clients the adapters need. Database, metrics
// and compute clients act on the secondary region; notification and
// parameter clients on the primary.
type Clients struct {
	RDS        *rds.Client
	CloudWatch *cloudwatch.Client
	ECS        *ecs.Client
	Route53    *route53.Client
	SNS        *sns.Client
	SSM        *ssm.Client
	S3         *s3.Client
}

// LoadConfig builds an aws.Config for region
func LoadConfig(ctx context.Context, s Settings, region string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if s.AccessKeyID != "" {
		creds := credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, s.SessionToken)
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config for %s: %w", region, err)
	}
	if s.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(s.Endpoint)
	}
	return cfg, nil
}

// NewClients creates service clients for the configured regions
func NewClients(ctx context.Context, s Settings) (*Clients, error) {
	if s.PrimaryRegion == "" || s.SecondaryRegion == "" {
		return nil, fmt.Errorf("primary and secondary regions are required")
	}

	primary, err := LoadConfig(ctx, s, s.PrimaryRegion)
	if err != nil {
		return nil, err
	}
	secondary, err := LoadConfig(ctx, s, s.SecondaryRegion)
	if err != nil {
		return nil, err
	}
	global, err := LoadConfig(ctx, s, route53Region)
	if err != nil {
		return nil, err
	}

	return &Clients{
		RDS:        rds.NewFromConfig(secondary),
		CloudWatch: cloudwatch.NewFromConfig(secondary),
		ECS:        ecs.NewFromConfig(secondary),
		Route53:    route53.NewFromConfig(global),
		SNS:        sns.NewFromConfig(primary),
		SSM:        ssm.NewFromConfig(primary),
		S3: s3.NewFromConfig(secondary, func(o *s3.Options) {
			o.UsePathStyle = s.Endpoint != ""
		}),
	}, nil
}
