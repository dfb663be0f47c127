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
	// Flow metrics
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	StateTransitions *prometheus.CounterVec

	// Submission metrics
	SubmissionsTotal    *prometheus.CounterVec
	ConfirmationLatency *prometheus.HistogramVec
	SimulationRejects   prometheus.Counter

	// Retry metrics
	RetryAttempts  *prometheus.CounterVec
	RetryExhausted *prometheus.CounterVec

	// Quote metrics
	QuotesTotal       *prometheus.CounterVec
	QuoteLatency      prometheus.Histogram
	QuotedPriceImpact prometheus.Histogram

	// Balance metrics
	BalancePolls *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastClosedCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "jupiter_bot"
	}
	f := promauto.With(reg)

	return &Metrics{
		// Flow metrics
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "cycles_total",
			Help:      "Total number of buy/sell cycles by final state",
		}, []string{"state"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a buy/sell cycle in seconds",
			Buckets:   []float64{5, 15, 30, 60, 90, 120, 180, 300, 600},
		}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "state_transitions_total",
			Help:      "Total number of position state transitions",
		}, []string{"from", "to"}),

		// Submission metrics
		SubmissionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "submissions_total",
			Help:      "Total number of broadcast transactions by outcome",
		}, []string{"outcome"}),
		ConfirmationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "confirmation_latency_seconds",
			Help:      "Time from broadcast to a terminal confirmation result",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60, 90},
		}, []string{"outcome"}),
		SimulationRejects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "simulation_rejects_total",
			Help:      "Total number of transactions rejected by simulation",
		}),

		// Retry metrics
		RetryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total number of attempts by operation label and result",
		}, []string{"label", "result"}),
		RetryExhausted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "exhausted_total",
			Help:      "Total number of operations that failed after all attempts",
		}, []string{"label"}),

		// Quote metrics
		QuotesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "requests_total",
			Help:      "Total number of quote requests by status",
		}, []string{"status"}),
		QuoteLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "latency_seconds",
			Help:      "Quote request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		QuotedPriceImpact: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "price_impact_pct",
			Help:      "Quoted price impact in percent",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 25},
		}),

		// Balance metrics
		BalancePolls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "polls_total",
			Help:      "Total number of balance reads by result",
		}, []string{"result"}),

		// Latency metrics
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"operation"}),

		// Health metrics
		LastClosedCycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_closed_cycle_timestamp",
			Help:      "Unix timestamp of the last closed cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordTransition counts a position state transition.
func RecordTransition(from, to string) {
	DefaultMetrics.StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordCycle records a finished cycle.
func RecordCycle(state string, seconds float64, closedAtUnix int64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(state).Inc()
	DefaultMetrics.CycleDuration.Observe(seconds)
	if closedAtUnix > 0 {
		DefaultMetrics.LastClosedCycle.Set(float64(closedAtUnix))
	}
}

// RecordSubmission records a terminal confirmation outcome.
func RecordSubmission(outcome string, seconds float64) {
	DefaultMetrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.ConfirmationLatency.WithLabelValues(outcome).Observe(seconds)
}

// RecordSimulationReject counts a transaction rejected by simulation.
func RecordSimulationReject() {
	DefaultMetrics.SimulationRejects.Inc()
}

// RecordAttempt counts one retry attempt.
func RecordAttempt(label string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	DefaultMetrics.RetryAttempts.WithLabelValues(label, result).Inc()
}

// RecordExhausted counts an operation that ran out of attempts.
func RecordExhausted(label string) {
	DefaultMetrics.RetryExhausted.WithLabelValues(label).Inc()
}

// RecordQuote records a quote request.
func RecordQuote(status string, seconds float64) {
	DefaultMetrics.QuotesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.QuoteLatency.Observe(seconds)
}

// RecordPriceImpact records a quoted price impact in percent.
func RecordPriceImpact(pct float64) {
	DefaultMetrics.QuotedPriceImpact.Observe(pct)
}

// RecordBalancePoll counts a balance read.
func RecordBalancePoll(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	DefaultMetrics.BalancePolls.WithLabelValues(result).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.RPCCallLatency.WithLabelValues(method, status).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
