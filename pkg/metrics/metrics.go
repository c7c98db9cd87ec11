// Package metrics exposes Prometheus instruments for the trading loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the trading loop reports.
type Metrics struct {
	// Decision cycle
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram

	// Orders
	OrdersTotal        *prometheus.CounterVec
	ProtectiveFailures *prometheus.CounterVec

	// Reconciliation
	ReconciledTotal *prometheus.CounterVec
	ReconcileMisses prometheus.Counter

	// Scheduler
	JobRuns     *prometheus.CounterVec
	JobDropped  *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// Account
	TotalCash     prometheus.Gauge
	TotalReturn   prometheus.Gauge
	OpenPositions prometheus.Gauge
}

// NewMetrics registers all instruments on reg under namespace. A nil reg
// uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "probsbots"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "cycles_total",
			Help:      "Decision cycles by result",
		}, []string{"result"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a decision cycle",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),

		OrdersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "submitted_total",
			Help:      "Orders submitted by kind and status",
		}, []string{"kind", "status"}),
		ProtectiveFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "protective_failures_total",
			Help:      "Protective orders the venue did not accept",
		}, []string{"leg"}),

		ReconciledTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "closed_total",
			Help:      "Position records closed by outcome and exit reason",
		}, []string{"outcome", "exit_reason"}),
		ReconcileMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "misses_total",
			Help:      "Flat positions without a matching history entry",
		}),

		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduled job runs by job and status",
		}, []string{"job", "status"}),
		JobDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "dropped_ticks_total",
			Help:      "Ticks dropped because the previous run was still in flight",
		}, []string{"job"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of scheduled job runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),

		TotalCash: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "total_cash_usd",
			Help:      "Wallet balance in the settlement asset",
		}),
		TotalReturn: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "total_return_ratio",
			Help:      "Return against initial capital",
		}),
		OpenPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "open_positions",
			Help:      "Live positions on the venue",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCycle counts a finished decision cycle.
func (m *Metrics) RecordCycle(result string, seconds float64) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(seconds)
}

// RecordOrder counts an order submission. kind is entry, stop_loss or take_profit.
func (m *Metrics) RecordOrder(kind string, err error) {
	if m == nil {
		return
	}
	status := "accepted"
	if err != nil {
		status = "rejected"
		if kind != "entry" {
			m.ProtectiveFailures.WithLabelValues(kind).Inc()
		}
	}
	m.OrdersTotal.WithLabelValues(kind, status).Inc()
}

// RecordReconciled counts a closed record.
func (m *Metrics) RecordReconciled(outcome, exitReason string) {
	if m == nil {
		return
	}
	m.ReconciledTotal.WithLabelValues(outcome, exitReason).Inc()
}

// RecordReconcileMiss counts a record left open without a history match.
func (m *Metrics) RecordReconcileMiss() {
	if m == nil {
		return
	}
	m.ReconcileMisses.Inc()
}

// RecordJobRun records a scheduler run.
func (m *Metrics) RecordJobRun(job string, err error, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(seconds)
}

// RecordJobDropped counts a tick skipped because job was still running.
func (m *Metrics) RecordJobDropped(job string) {
	if m == nil {
		return
	}
	m.JobDropped.WithLabelValues(job).Inc()
}

// UpdateAccount sets the account gauges.
func (m *Metrics) UpdateAccount(totalCash, totalReturn float64, openPositions int) {
	if m == nil {
		return
	}
	m.TotalCash.Set(totalCash)
	m.TotalReturn.Set(totalReturn)
	m.OpenPositions.Set(float64(openPositions))
}
