package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_sessions_started_total",
		Help: "The total number of orchestration sessions started",
	}, []string{"kind"})

	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_sessions_finished_total",
		Help: "The total number of orchestration sessions that reached a terminal phase",
	}, []string{"kind", "outcome"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payflow_active_sessions",
		Help: "The number of orchestration sessions not yet in a terminal phase",
	})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payflow_phase_duration_seconds",
		Help:    "Time spent in each orchestration phase",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // Start at 0.5s with 10 buckets doubling in size
	}, []string{"phase"})

	TransactionsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_transactions_submitted_total",
		Help: "The total number of transactions handed to the signing agent",
	}, []string{"purpose"})

	GasUsed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payflow_gas_used",
		Help:    "Gas used by confirmed transactions",
		Buckets: prometheus.ExponentialBuckets(21000, 2, 10), // Start at 21000 with 10 buckets doubling in size
	}, []string{"purpose"})

	GasPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "payflow_gas_fee_cap_gwei",
		Help: "Fee cap of the last submitted transaction in gwei",
	}, []string{"chain_id"})

	WatcherResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_watcher_resolutions_total",
		Help: "Confirmation watcher resolutions by winning strategy and status",
	}, []string{"strategy", "status"})

	ClassifiedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_errors_total",
		Help: "Total number of errors by classified kind",
	}, []string{"kind"})

	PersistenceWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_persistence_writes_total",
		Help: "Durable store writes by operation and result",
	}, []string{"operation", "result"})

	PersistenceRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_persistence_retries_total",
		Help: "Number of retried durable store writes",
	})
)
