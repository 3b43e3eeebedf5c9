package cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/FairForge/warmstandby/internal/ha"
)

// Route53API is the subset of the Route 53 client used here
type Route53API interface {
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
	GetChange(ctx context.Context, params *route53.GetChangeInput, optFns ...func(*route53.Options)) (*route53.GetChangeOutput, error)
	ListResourceRecordSets(ctx context.Context, params *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
	GetHealthCheckStatus(ctx context.Context, params *route53.GetHealthCheckStatusInput, optFns ...func(*route53.Options)) (*route53.GetHealthCheckStatusOutput, error)
}

// Route53Admin implements ha.DNSAdmin with alias A records
type Route53Admin struct {
	client Route53API
}

func NewRoute53Admin(client Route53API) *Route53Admin {
	return &Route53Admin{client: client}
}

// UpsertAlias points the record at the alias target. A record at the same
// name carrying a routing policy or a CNAME is treated as a manual override
// and reported as ha.ErrRecordConflict without changing anything.
func (a *Route53Admin) UpsertAlias(ctx context.Context, req ha.DNSCutoverRequest) (string, error) {
	if err := a.checkOverride(ctx, req.ZoneIdentifier, req.RecordName); err != nil {
		return "", err
	}

	out, err := a.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(req.ZoneIdentifier),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("warm standby failover"),
			Changes: []types.Change{{
				Action: types.ChangeActionUpsert,
				ResourceRecordSet: &types.ResourceRecordSet{
					Name: aws.String(req.RecordName),
					Type: types.RRTypeA,
					AliasTarget: &types.AliasTarget{
						DNSName:              aws.String(req.NewTarget),
						HostedZoneId:         aws.String(req.TargetZoneIdentifier),
						EvaluateTargetHealth: true,
					},
				},
			}},
		},
	})
	if err != nil {
		var invalid *types.InvalidChangeBatch
		if errors.As(err, &invalid) && conflictingBatch(invalid) {
			return "", fmt.Errorf("upsert %s: %w: %w", req.RecordName, ha.ErrRecordConflict, err)
		}
		return "", fmt.Errorf("upsert %s: %w", req.RecordName, err)
	}
	if out.ChangeInfo == nil {
		return "", nil
	}
	return aws.ToString(out.ChangeInfo.Id), nil
}

// Route 53 rejects a batch for many reasons; only these mean another record
// set occupies the name.
var conflictPhrases = []string{
	"already exists",
	"conflicting rrset",
	"other rrsets exist",
}

func conflictingBatch(invalid *types.InvalidChangeBatch) bool {
	messages := append([]string{invalid.ErrorMessage()}, invalid.Messages...)
	for _, m := range messages {
		m = strings.ToLower(m)
		for _, phrase := range conflictPhrases {
			if strings.Contains(m, phrase) {
				return true
			}
		}
	}
	return false
}

func (a *Route53Admin) checkOverride(ctx context.Context, zone, name string) error {
	out, err := a.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zone),
		StartRecordName: aws.String(name),
		MaxItems:        aws.Int32(10),
	})
	if err != nil {
		var noZone *types.NoSuchHostedZone
		if errors.As(err, &noZone) {
			return fmt.Errorf("hosted zone %s does not exist: %w", zone, err)
		}
		return fmt.Errorf("list records in %s: %w", zone, err)
	}

	want := normalizeName(name)
	for _, rrs := range out.ResourceRecordSets {
		if normalizeName(aws.ToString(rrs.Name)) != want {
			continue
		}
		if id := aws.ToString(rrs.SetIdentifier); id != "" {
			return fmt.Errorf("%w: %s has routing policy record %q", ha.ErrRecordConflict, name, id)
		}
		if rrs.Type == types.RRTypeCname {
			return fmt.Errorf("%w: %s is a CNAME", ha.ErrRecordConflict, name)
		}
	}
	return nil
}

// ChangeInSync reports whether the change has propagated
func (a *Route53Admin) ChangeInSync(ctx context.Context, changeID string) (bool, error) {
	out, err := a.client.GetChange(ctx, &route53.GetChangeInput{Id: aws.String(changeID)})
	if err != nil {
		return false, fmt.Errorf("get change %s: %w", changeID, err)
	}
	if out.ChangeInfo == nil {
		return false, nil
	}
	return out.ChangeInfo.Status == types.ChangeStatusInsync, nil
}

func normalizeName(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}

// Route53HealthSource implements ha.HealthSource over a Route 53 health
// check; the target is the health check ID. A target is healthy when a
// majority of checkers report success.
type Route53HealthSource struct {
	client Route53API
}

func NewRoute53HealthSource(client Route53API) *Route53HealthSource {
	return &Route53HealthSource{client: client}
}

// Check never returns an error
func (s *Route53HealthSource) Check(ctx context.Context, healthCheckID string) ha.HealthCheckResult {
	start := time.Now()
	result := ha.HealthCheckResult{Target: healthCheckID, CheckedAt: start}

	out, err := s.client.GetHealthCheckStatus(ctx, &route53.GetHealthCheckStatusInput{
		HealthCheckId: aws.String(healthCheckID),
	})
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = (&ha.HealthCheckError{Target: healthCheckID, Err: err}).Error()
		return result
	}

	total, ok := 0, 0
	var lastFailure string
	for _, obs := range out.HealthCheckObservations {
		if obs.StatusReport == nil {
			continue
		}
		total++
		status := aws.ToString(obs.StatusReport.Status)
		if strings.HasPrefix(status, "Success") {
			ok++
		} else {
			lastFailure = status
		}
	}

	if total == 0 {
		result.Error = "no health checker observations"
		return result
	}
	result.Healthy = ok*2 > total
	if !result.Healthy {
		result.Error = fmt.Sprintf("%d/%d checkers healthy: %s", ok, total, lastFailure)
	}
	return result
}
