// Package metrics exposes Prometheus counters for reconciliation runs:
//
//	ladder_runs_total{result}          runs by outcome (success|failure|skipped)
//	ladder_orders_total{side,mode}     orders placed (mode: live|dry)
//	ladder_cancels_total{mode}         resting orders cancelled on recenter
//	ladder_slot_errors_total           per-slot placement failures
//	ladder_run_duration_seconds        wall time of one reconciliation pass
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	runs        *prometheus.CounterVec
	orders      *prometheus.CounterVec
	cancels     *prometheus.CounterVec
	slotErrors  prometheus.Counter
	runDuration prometheus.Histogram
	gatherer    prometheus.Gatherer
}

// New registers the collectors on a fresh registry so tests and multiple
// instances never collide on the global one.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_runs_total",
			Help: "Reconciliation runs by result",
		}, []string{"result"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_orders_total",
			Help: "Orders placed",
		}, []string{"side", "mode"}),
		cancels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_cancels_total",
			Help: "Resting orders cancelled on recenter",
		}, []string{"mode"}),
		slotErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_slot_errors_total",
			Help: "Per-slot placement failures",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ladder_run_duration_seconds",
			Help:    "Wall time of a reconciliation pass",
			Buckets: prometheus.DefBuckets,
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.runs, m.orders, m.cancels, m.slotErrors, m.runDuration,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

func (m *Metrics) ObserveRun(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(took.Seconds())
}

func (m *Metrics) OrderPlaced(side string, dryRun bool) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(side, mode(dryRun)).Inc()
}

func (m *Metrics) OrderCancelled(dryRun bool) {
	if m == nil {
		return
	}
	m.cancels.WithLabelValues(mode(dryRun)).Inc()
}

func (m *Metrics) SlotError() {
	if m == nil {
		return
	}
	m.slotErrors.Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func mode(dryRun bool) string {
	if dryRun {
		return "dry"
	}
	return "live"
}
