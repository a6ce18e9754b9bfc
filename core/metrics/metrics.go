package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Remote call metrics
var (
	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameRemoteCallsTotal,
			Help: HelpTextRemoteCallsTotal,
		},
		[]string{LabelService, LabelOp, LabelResult},
	)

	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricNameRemoteCallDuration,
			Help:    HelpTextRemoteCallDuration,
			Buckets: RemoteLatencyBuckets,
		},
		[]string{LabelService, LabelOp},
	)

	RemoteResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameRemoteResets,
			Help: HelpTextRemoteResets,
		},
		[]string{LabelService},
	)

	APIUsage24h = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricNameAPIUsage24h,
			Help: HelpTextAPIUsage24h,
		},
		[]string{LabelService},
	)
)

// Reconciliation metrics
var (
	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameReconcileRuns,
			Help: HelpTextReconcileRuns,
		},
		[]string{LabelService, LabelMode},
	)

	ReconcileOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameReconcileOutcomes,
			Help: HelpTextReconcileOutcomes,
		},
		[]string{LabelService, LabelOutcome},
	)

	DeltasPushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameDeltasPushed,
			Help: HelpTextDeltasPushed,
		},
		[]string{LabelService},
	)

	DeltasDeferred = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricNameDeltasDeferred,
			Help: HelpTextDeltasDeferred,
		},
		[]string{LabelService},
	)

	OrdersConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameOrdersConsumed,
			Help: HelpTextOrdersConsumed,
		},
		[]string{LabelService},
	)
)

// State machine metrics
var (
	ServiceFlag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricNameServiceFlag,
			Help: HelpTextServiceFlag,
		},
		[]string{LabelService, LabelFlag},
	)

	BackoffSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricNameBackoffSeconds,
			Help: HelpTextBackoffSeconds,
		},
		[]string{LabelService},
	)

	JournalCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameJournalCommits,
			Help: HelpTextJournalCommits,
		},
		[]string{LabelResult},
	)
)

// BoolGauge converts a flag to a gauge value.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
