package internaldefs

import (
	authcore "github.com/stayloop/authcore"
)

// CounterDef defines a public type used by authcore APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by authcore APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the session engine.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricIssueSuccess, Name: "authcore_issue_success_total", Help: "Successful token pair issuances."},
	{ID: authcore.MetricIssueFailure, Name: "authcore_issue_failure_total", Help: "Failed token pair issuances."},
	{ID: authcore.MetricVerifySuccess, Name: "authcore_verify_success_total", Help: "Successful access credential verifications."},
	{ID: authcore.MetricVerifyFailure, Name: "authcore_verify_failure_total", Help: "Failed access credential verifications."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh operations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authcore.MetricRefreshRateLimited, Name: "authcore_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created session records."},
	{ID: authcore.MetricSessionRevoked, Name: "authcore_session_revoked_total", Help: "Revoked session records."},
	{ID: authcore.MetricRevokeAllRuns, Name: "authcore_revoke_all_runs_total", Help: "Logout-everywhere operations."},
	{ID: authcore.MetricStoreUnavailable, Name: "authcore_store_unavailable_total", Help: "Session store infrastructure failures."},
	{ID: authcore.MetricCacheHit, Name: "authcore_cache_hit_total", Help: "Snapshot reads served from the fresh window."},
	{ID: authcore.MetricCacheStale, Name: "authcore_cache_stale_total", Help: "Snapshot reads served from the stale window."},
	{ID: authcore.MetricCacheMiss, Name: "authcore_cache_miss_total", Help: "Snapshot reads with no servable entry."},
	{ID: authcore.MetricCacheUnavailable, Name: "authcore_cache_unavailable_total", Help: "Snapshot cache infrastructure failures."},
	{ID: authcore.MetricCacheRebuild, Name: "authcore_cache_rebuild_total", Help: "Snapshot rebuilds executed."},
	{ID: authcore.MetricCacheRebuildFailure, Name: "authcore_cache_rebuild_failure_total", Help: "Snapshot rebuilds that failed."},
	{ID: authcore.MetricCleanupRuns, Name: "authcore_cleanup_runs_total", Help: "Cleanup sweeps executed."},
	{ID: authcore.MetricCleanupDeleted, Name: "authcore_cleanup_deleted_total", Help: "Session records deleted by cleanup sweeps."},
}

// HistogramDefs is an exported constant or variable used by the session engine.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricVerifyLatency, Name: "authcore_verify_latency_seconds", Help: "Access verification latency histogram."},
	{ID: authcore.MetricSnapshotLatency, Name: "authcore_snapshot_latency_seconds", Help: "Session snapshot read latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the session engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramUpperBounds holds the finite bucket upper bounds in seconds.
var HistogramUpperBounds = []float64{
	0.005,
	0.01,
	0.025,
	0.05,
	0.1,
	0.25,
	0.5,
}

// HistogramBoundSuffix is an exported constant or variable used by the session engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
