package metrics

// ============================================================================
// Metric Names
// ============================================================================

// Remote call metric names
const (
	MetricNameRemoteCallsTotal   = "stocksync_remote_calls_total"
	MetricNameRemoteCallDuration = "stocksync_remote_call_duration_seconds"
	MetricNameRemoteResets       = "stocksync_remote_resets_total"
	MetricNameAPIUsage24h        = "stocksync_api_usage_24h"
)

// Reconciliation metric names
const (
	MetricNameReconcileRuns     = "stocksync_reconcile_runs_total"
	MetricNameReconcileOutcomes = "stocksync_reconcile_outcomes_total"
	MetricNameDeltasPushed      = "stocksync_deltas_pushed_total"
	MetricNameDeltasDeferred    = "stocksync_deltas_deferred"
	MetricNameOrdersConsumed    = "stocksync_orders_consumed_total"
)

// State machine metric names
const (
	MetricNameServiceFlag    = "stocksync_service_flag"
	MetricNameBackoffSeconds = "stocksync_backoff_seconds"
	MetricNameJournalCommits = "stocksync_journal_commits_total"
)

// ============================================================================
// Metric Help Text
// ============================================================================

const (
	HelpTextRemoteCallsTotal   = "Total number of calls made to a remote marketplace"
	HelpTextRemoteCallDuration = "Remote marketplace call latency in seconds"
	HelpTextRemoteResets       = "Number of transport resets after consecutive failures"
	HelpTextAPIUsage24h        = "Calls counted against the daily quota over the last 24 hours"
	HelpTextReconcileRuns      = "Number of reconciliations by mode"
	HelpTextReconcileOutcomes  = "Lots classified by reconciliation outcome"
	HelpTextDeltasPushed       = "Delta entries pushed to a remote marketplace"
	HelpTextDeltasDeferred     = "Delta entries waiting for quota headroom"
	HelpTextOrdersConsumed     = "Orders consumed from a remote marketplace"
	HelpTextServiceFlag        = "Whether a state flag is raised for a service (1) or not (0)"
	HelpTextBackoffSeconds     = "Current sync backoff delay"
	HelpTextJournalCommits     = "Journal commits by result"
)

// ============================================================================
// Labels
// ============================================================================

const (
	LabelService = "service"
	LabelOp      = "op"
	LabelResult  = "result"
	LabelMode    = "mode"
	LabelOutcome = "outcome"
	LabelFlag    = "flag"
)

// Result label values
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// RemoteLatencyBuckets covers quick API calls up to full inventory downloads.
var RemoteLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
