// Package ha orchestrates failover of a warm-standby deployment from a
// primary region to a secondary region.
//
// # Overview
//
// A failover domain pairs a primary endpoint with a secondary stack made of
// a database read replica, a container service running at reduced capacity
// and a DNS record that fronts both. When the primary is judged unhealthy,
// a failover run:
//   - promotes the replica to a standalone primary
//   - scales the secondary service up to production capacity
//   - repoints the DNS alias at the secondary endpoint
//   - probes the secondary and notifies operators
//
// # State machine
//
// Every run walks the same ordered states:
//
//	CheckPrimaryHealth ─► DecideFailover ─┬─(healthy)──────────────────────────► Done
//	                                      └─(unhealthy or forced)
//	                                         ▼
//	PromoteReplica ─► WaitForPromotion ─► ScaleSecondary ─► WaitForScaling
//	                                                           │
//	   Done ◄── Notify ◄── PostFailoverCheck ◄── UpdateDns ◄───┘
//
// A fatal error in any step skips straight to Notify with critical
// severity. The whole run is bounded by DRConfig.RunTimeout. A failed
// post-failover check is reported as a degraded run and nothing is rolled
// back.
//
// Steps are idempotent. Promoting an already promoted replica, scaling to
// the current desired count and upserting an identical alias are all
// successes, so re-running a domain after a partial failure is safe.
//
// # Components
//
// DROrchestrator drives runs and enforces one in-flight run per domain:
//
//	orch, err := ha.NewDROrchestrator(ha.DefaultDRConfig(), ha.Dependencies{
//		Health:   prober,
//		Database: rdsAdmin,
//		Compute:  ecsAdmin,
//		DNS:      route53Admin,
//		Sink:     snsSink,
//	}, logger)
//
//	run, err := orch.Execute(ctx, domain, ha.TriggerRequest{Reason: "drill"})
//
// HealthMonitor probes each primary on an interval and starts a run once
// FailureThreshold consecutive checks fail:
//
//	Healthy ──(failure)──► Degraded ──(threshold)──► Failed ──► failover run
//	   ▲                                               │
//	   └──────────(recoveries)──── Recovering ◄────────┘
//
// RTORPOTracker measures each completed failover against the recovery time
// and recovery point objectives of its domain.
//
// # Ports
//
// The package talks to the outside world only through the interfaces in
// ports.go. internal/cloud provides AWS implementations and
// internal/health provides an HTTP prober.
package ha
