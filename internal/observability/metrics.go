// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Launch metrics
	TokensCreated prometheus.Counter
	Graduations   prometheus.Counter
	PoolsCreated  prometheus.Counter
	PoolFailures  prometheus.Counter

	// Settlement metrics
	TradesSettled        *prometheus.CounterVec
	DuplicateSettlements prometheus.Counter
	SkippedRecordings    prometheus.Counter
	ReserveViolations    prometheus.Counter
	ExecutionFailures    prometheus.Counter
	SettlementLatency    prometheus.Histogram

	// Market data metrics
	CandleUpdates    *prometheus.CounterVec
	CandleHeartbeats prometheus.Counter
	OracleRefreshes  *prometheus.CounterVec
	OracleRate       prometheus.Gauge

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec
	WatcherEvents  prometheus.Counter
	WatcherDrops   prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "launchpad"
	}

	return &Metrics{
		// Launch metrics
		TokensCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "tokens_created_total",
			Help:      "Total number of tokens created",
		}),
		Graduations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "graduations_total",
			Help:      "Total number of curves that crossed the graduation threshold",
		}),
		PoolsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "pools_created_total",
			Help:      "Total number of external venue pools created",
		}),
		PoolFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "pool_failures_total",
			Help:      "Total number of failed pool creation attempts",
		}),

		// Settlement metrics
		TradesSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "trades_settled_total",
			Help:      "Total number of trades settled by side",
		}, []string{"side"}),
		DuplicateSettlements: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "duplicates_total",
			Help:      "Total number of settlement requests replaying an already settled signature",
		}),
		SkippedRecordings: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "skipped_recordings_total",
			Help:      "Total number of confirmed transactions whose trade event could not be verified",
		}),
		ReserveViolations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "reserve_violations_total",
			Help:      "Total number of settlements aborted by a reserve consistency check",
		}),
		ExecutionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "execution_failures_total",
			Help:      "Total number of transactions that failed on-chain execution",
		}),
		SettlementLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "latency_seconds",
			Help:      "End-to-end settlement latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		// Market data metrics
		CandleUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "candle_updates_total",
			Help:      "Total number of candle bucket upserts by interval",
		}, []string{"interval"}),
		CandleHeartbeats: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "candle_heartbeats_total",
			Help:      "Total number of heartbeat passes over open candle buckets",
		}),
		OracleRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "oracle_refreshes_total",
			Help:      "Total number of reference rate refreshes by status",
		}, []string{"status"}),
		OracleRate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "oracle_rate_usd",
			Help:      "Last fetched USD reference rate",
		}),

		// Chain metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WatcherEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "watcher_events_total",
			Help:      "Total number of log notifications received from the watcher",
		}),
		WatcherDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "watcher_drops_total",
			Help:      "Total number of log notifications dropped on a full buffer",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTokenCreated increments the tokens created counter.
func RecordTokenCreated() {
	DefaultMetrics.TokensCreated.Inc()
}

// RecordTradeSettled increments the settled trades counter for a side.
func RecordTradeSettled(side string) {
	DefaultMetrics.TradesSettled.WithLabelValues(side).Inc()
}

// RecordDuplicateSettlement increments the duplicate settlements counter.
func RecordDuplicateSettlement() {
	DefaultMetrics.DuplicateSettlements.Inc()
}

// RecordSkippedRecording increments the skipped recordings counter.
func RecordSkippedRecording() {
	DefaultMetrics.SkippedRecordings.Inc()
}

// RecordReserveViolation increments the reserve violations counter.
func RecordReserveViolation() {
	DefaultMetrics.ReserveViolations.Inc()
}

// RecordExecutionFailure increments the execution failures counter.
func RecordExecutionFailure() {
	DefaultMetrics.ExecutionFailures.Inc()
}

// RecordSettlementLatency records end-to-end settlement latency.
func RecordSettlementLatency(seconds float64) {
	DefaultMetrics.SettlementLatency.Observe(seconds)
}

// RecordCandleUpdate increments the candle updates counter for an interval.
func RecordCandleUpdate(interval string) {
	DefaultMetrics.CandleUpdates.WithLabelValues(interval).Inc()
}

// RecordHeartbeat increments the candle heartbeats counter.
func RecordHeartbeat() {
	DefaultMetrics.CandleHeartbeats.Inc()
}

// RecordOracleRefresh records a reference rate refresh outcome.
func RecordOracleRefresh(rate float64, err error) {
	if err != nil {
		DefaultMetrics.OracleRefreshes.WithLabelValues("error").Inc()
		return
	}
	DefaultMetrics.OracleRefreshes.WithLabelValues("ok").Inc()
	DefaultMetrics.OracleRate.Set(rate)
}

// RecordGraduation increments the graduations counter.
func RecordGraduation() {
	DefaultMetrics.Graduations.Inc()
}

// RecordPoolCreated increments the pools created counter.
func RecordPoolCreated() {
	DefaultMetrics.PoolsCreated.Inc()
}

// RecordPoolFailure increments the pool failures counter.
func RecordPoolFailure() {
	DefaultMetrics.PoolFailures.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
