// Package metrics exposes Prometheus instrumentation for the pipeline. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "classifier"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	externalCalls *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	aiTokens      *prometheus.CounterVec
	escalations   prometheus.Counter
	reassignments prometheus.Counter
	budgetStops   *prometheus.CounterVec
	queueLag      prometheus.Histogram
	queueInFlight prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_invocations_total",
			Help:      "Stage handler invocations by stage and status.",
		}, []string{"stage", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage handler duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		externalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Paid external calls by provider and status.",
		}, []string{"provider", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by namespace and result.",
		}, []string{"namespace", "result"}),
		aiTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "tokens_total",
			Help:      "Tokens consumed by model.",
		}, []string{"model"}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "escalated_rows_total",
			Help:      "Rows resubmitted to the secondary model.",
		}),
		reassignments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "fallback_reassignments_total",
			Help:      "Fallback results reassigned to a substantive category.",
		}),
		budgetStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "stops_total",
			Help:      "Stage invocations halted by a budget cap.",
		}, []string{"stage"}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "lag_seconds",
			Help:      "Delay between enqueue and task start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		queueInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "in_flight",
			Help:      "Tasks currently being processed.",
		}),
	}

	registry.MustRegister(
		m.stageTotal, m.stageDuration, m.externalCalls, m.cacheLookups,
		m.aiTokens, m.escalations, m.reassignments, m.budgetStops,
		m.queueLag, m.queueInFlight,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveStage records one stage invocation.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageTotal.WithLabelValues(stage, status(err)).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ExternalCall records one paid provider call.
func (m *Metrics) ExternalCall(provider string, err error) {
	if m == nil {
		return
	}
	m.externalCalls.WithLabelValues(provider, status(err)).Inc()
}

// CacheLookup records a hit or miss in a cache namespace.
func (m *Metrics) CacheLookup(ns string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(ns, result).Inc()
}

// AITokens adds consumed tokens for a model.
func (m *Metrics) AITokens(model string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.aiTokens.WithLabelValues(model).Add(float64(n))
}

// Escalated counts rows sent to the secondary model.
func (m *Metrics) Escalated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.escalations.Add(float64(n))
}

// FallbackReassigned counts one anti-fallback reassignment.
func (m *Metrics) FallbackReassigned() {
	if m == nil {
		return
	}
	m.reassignments.Inc()
}

// BudgetStop counts a stage halted by a budget cap.
func (m *Metrics) BudgetStop(stage string) {
	if m == nil {
		return
	}
	m.budgetStops.WithLabelValues(stage).Inc()
}

// StartTask marks a queue task in flight and records its lag.
func (m *Metrics) StartTask(lag time.Duration) {
	if m == nil {
		return
	}
	m.queueInFlight.Inc()
	if lag >= 0 {
		m.queueLag.Observe(lag.Seconds())
	}
}

// FinishTask marks a queue task done.
func (m *Metrics) FinishTask() {
	if m == nil {
		return
	}
	m.queueInFlight.Dec()
}
