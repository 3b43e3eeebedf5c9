package ha

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DNSCutover moves the public record to the secondary endpoint.
type DNSCutover struct {
	admin DNSAdmin
}

// NewDNSCutover creates a cutover step
func NewDNSCutover(admin DNSAdmin) *DNSCutover {
	return &DNSCutover{admin: admin}
}

// Upsert points the record at the new target. Conflicts are returned as is
// and are never retried here.
func (d *DNSCutover) Upsert(ctx context.Context, req DNSCutoverRequest) (DNSCutoverResult, error) {
	result := DNSCutoverResult{
		ZoneIdentifier: req.ZoneIdentifier,
		RecordName:     req.RecordName,
		NewTarget:      req.NewTarget,
		Status:         DNSPending,
	}

	if req.ZoneIdentifier == "" || req.RecordName == "" || req.NewTarget == "" {
		result.Status = DNSFailed
		return result, &DNSError{Zone: req.ZoneIdentifier, Record: req.RecordName, Err: errors.New("zone, record and target are required")}
	}

	changeID, err := d.admin.UpsertAlias(ctx, req)
	if err != nil {
		result.Status = DNSFailed
		return result, &DNSError{Zone: req.ZoneIdentifier, Record: req.RecordName, Err: err}
	}

	result.ChangeID = changeID
	return result, nil
}

// AwaitSync polls the change until the provider reports it propagated.
func (d *DNSCutover) AwaitSync(ctx context.Context, result DNSCutoverResult, interval, timeout time.Duration) (DNSCutoverResult, error) {
	if result.ChangeID == "" {
		result.Status = DNSInSync
		return result, nil
	}

	err := pollUntil(ctx, interval, timeout, func(ctx context.Context) (bool, error) {
		return d.admin.ChangeInSync(ctx, result.ChangeID)
	})
	if err != nil {
		result.Status = DNSFailed
		return result, &DNSError{
			Zone:   result.ZoneIdentifier,
			Record: result.RecordName,
			Err:    fmt.Errorf("change %s: %w", result.ChangeID, err),
		}
	}

	result.Status = DNSInSync
	return result, nil
}
