package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "pdpsync"

// Metrics bundles the service's Prometheus collectors. A single instance is
// constructed at startup and threaded into whichever components need it.
// RenderDuration, RateLimitBlocked, QueueDepth and QueueDropped are
// registered, but no component updates them.
type Metrics struct {
	HTTPRequestDuration *prometheus.HistogramVec
	AdminBatches        *prometheus.CounterVec
	RenderDuration      *prometheus.HistogramVec
	RateLimitBlocked    prometheus.Counter
	QueueDepth          prometheus.Gauge
	QueueDropped        prometheus.Counter
	RunDuration         prometheus.Histogram
	RunsTotal           *prometheus.CounterVec
}

// NewMetrics constructs the service's collectors, unregistered.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		AdminBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "batches_total",
			Help:      "Admin bulk jobs submitted, by queue and result.",
		}, []string{"queue", "result"}),
		RenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "render",
			Name:      "batch_duration_seconds",
			Help:      "Time to render one batch of product pages.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"locale"}),
		RateLimitBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "blocked_total",
			Help:      "SKU updates that did not acquire a rate-limit token.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "eventqueue",
			Name:      "depth",
			Help:      "Current depth of the deferred-event retry queue.",
		}),
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventqueue",
			Name:      "dropped_total",
			Help:      "Events dropped from the retry queue (capacity or TTL exceeded).",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a full orchestrator run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "runs_total",
			Help:      "Orchestrator runs, by terminal status.",
		}, []string{"status"}),
	}
}

// Registry returns a Prometheus registry with Go/process collectors and
// every collector in m registered.
func (m *Metrics) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestDuration,
		m.AdminBatches,
		m.RenderDuration,
		m.RateLimitBlocked,
		m.QueueDepth,
		m.QueueDropped,
		m.RunDuration,
		m.RunsTotal,
	)
	return reg
}
