package ha

import (
	"time"
)

// Severity represents notification severity levels
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// HealthCheckResult is the outcome of a single probe against a target.
type HealthCheckResult struct {
	Target    string        `json:"target"`
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
	Error     string        `json:"error,omitempty"`
}

// FailoverEvent records why a failover run was started. It is created once
// and never modified afterwards.
type FailoverEvent struct {
	TriggerTime           time.Time         `json:"trigger_time"`
	Reason                string            `json:"reason"`
	InitiatingCheckResult HealthCheckResult `json:"initiating_check_result"`
	Forced                bool              `json:"forced,omitempty"`
}

// NewFailoverEvent builds a failover event from the check that caused it.
func NewFailoverEvent(reason string, check HealthCheckResult, forced bool) FailoverEvent {
	if reason == "" {
		reason = "primary health check failed"
	}
	return FailoverEvent{
		TriggerTime:           time.Now(),
		Reason:                reason,
		InitiatingCheckResult: check,
		Forced:                forced,
	}
}

// PromotionStatus tracks a replica promotion
type PromotionStatus string

const (
	PromotionPending  PromotionStatus = "pending"
	PromotionPromoted PromotionStatus = "promoted"
	PromotionFailed   PromotionStatus = "failed"
)

// PromotionResult describes the state of a replica promotion.
type PromotionResult struct {
	SourceIdentifier string          `json:"source_identifier"`
	TargetRegion     string          `json:"target_region,omitempty"`
	Status           PromotionStatus `json:"status"`
	AlreadyPrimary   bool            `json:"already_primary,omitempty"`
	ReplicaLag       time.Duration   `json:"replica_lag,omitempty"`
}

// ScaleStatus tracks a capacity change
type ScaleStatus string

const (
	ScaleRequested ScaleStatus = "requested"
	ScaleUnchanged ScaleStatus = "unchanged"
	ScaleReady     ScaleStatus = "ready"
	ScaleFailed    ScaleStatus = "failed"
)

// ScaleResult describes a desired count change on the secondary service.
type ScaleResult struct {
	ClusterIdentifier string      `json:"cluster_identifier"`
	ServiceIdentifier string      `json:"service_identifier"`
	DesiredCount      int32       `json:"desired_count"`
	RunningCount      int32       `json:"running_count"`
	Status            ScaleStatus `json:"status"`
}

// DNSStatus tracks a record change
type DNSStatus string

const (
	DNSPending DNSStatus = "pending"
	DNSInSync  DNSStatus = "insync"
	DNSFailed  DNSStatus = "failed"
)

// DNSCutoverRequest points a public record at a new alias target.
type DNSCutoverRequest struct {
	ZoneIdentifier string `json:"zone_identifier"`
	RecordName     string `json:"record_name"`
	NewTarget      string `json:"new_target"`
	// TargetZoneIdentifier is the hosted zone of the alias target (the load
	// balancer's canonical zone).
	TargetZoneIdentifier string `json:"target_zone_identifier,omitempty"`
}

// DNSCutoverResult describes the outcome of a DNS upsert.
type DNSCutoverResult struct {
	ZoneIdentifier string    `json:"zone_identifier"`
	RecordName     string    `json:"record_name"`
	NewTarget      string    `json:"new_target"`
	ChangeID       string    `json:"change_id,omitempty"`
	Status         DNSStatus `json:"status"`
}

// NotificationMessage is the terminal artifact of a run.
type NotificationMessage struct {
	Subject  string            `json:"subject"`
	Body     string            `json:"body"`
	Severity Severity          `json:"severity"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FailoverDomain wires one primary/secondary pair to the identifiers of the
// external systems the orchestrator acts on.
type FailoverDomain struct {
	Name            string `json:"name"`
	PrimaryRegion   string `json:"primary_region"`
	SecondaryRegion string `json:"secondary_region"`

	PrimaryTarget   string `json:"primary_target"`
	SecondaryTarget string `json:"secondary_target"`

	ReplicaIdentifier string `json:"replica_identifier"`

	Cluster      string `json:"cluster"`
	Service      string `json:"service"`
	DesiredCount int32  `json:"desired_count"`

	HostedZoneID       string `json:"hosted_zone_id"`
	RecordName         string `json:"record_name"`
	SecondaryAliasDNS  string `json:"secondary_alias_dns"`
	SecondaryAliasZone string `json:"secondary_alias_zone"`

	AutoFailover bool `json:"auto_failover"`
}

// DNSRequest returns the cutover request for this domain.
func (d FailoverDomain) DNSRequest() DNSCutoverRequest {
	return DNSCutoverRequest{
		ZoneIdentifier:       d.HostedZoneID,
		RecordName:           d.RecordName,
		NewTarget:            d.SecondaryAliasDNS,
		TargetZoneIdentifier: d.SecondaryAliasZone,
	}
}
