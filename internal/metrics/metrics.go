package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "netprobe"

// Metrics holds all Prometheus metrics for netprobe. Each instance owns its
// registry.
type Metrics struct {
	registry *prometheus.Registry

	ExchangesTotal   *prometheus.CounterVec
	ExchangeDuration *prometheus.HistogramVec
	BytesSent        *prometheus.CounterVec
	BytesReceived    *prometheus.CounterVec
	JobsInFlight     prometheus.Gauge
	ActiveWorkers    prometheus.Gauge
	QueuedJobs       prometheus.Gauge
	SavesFailed      prometheus.Counter
}

// New creates and registers all Prometheus metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ExchangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchanges_total",
				Help:      "Total number of exchanges by protocol and status",
			},
			[]string{"protocol", "status"},
		),
		ExchangeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "exchange_duration_seconds",
				Help:      "Exchange latency histogram",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"protocol"},
		),
		BytesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_sent_total",
				Help:      "Payload bytes written to peers",
			},
			[]string{"protocol"},
		),
		BytesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_received_total",
				Help:      "Response bytes read from peers",
			},
			[]string{"protocol"},
		),
		JobsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_in_flight",
				Help:      "Current number of jobs being processed",
			},
		),
		ActiveWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_workers",
				Help:      "Number of workers currently running a job",
			},
		),
		QueuedJobs: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_jobs",
				Help:      "Number of jobs waiting in queue",
			},
		),
		SavesFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saves_failed_total",
				Help:      "Responses that could not be written to the save path",
			},
		),
	}
}

// WithRuntimeCollectors adds the Go runtime and process collectors, for
// the metrics server.
func (m *Metrics) WithRuntimeCollectors() *Metrics {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordExchange records metrics for a completed exchange.
func (m *Metrics) RecordExchange(protocol string, failed bool, d time.Duration, sent, received int64) {
	status := "success"
	if failed {
		status = "error"
	}

	m.ExchangesTotal.WithLabelValues(protocol, status).Inc()
	m.ExchangeDuration.WithLabelValues(protocol).Observe(d.Seconds())
	m.BytesSent.WithLabelValues(protocol).Add(float64(sent))
	m.BytesReceived.WithLabelValues(protocol).Add(float64(received))
}

// SetActiveWorkers updates the active workers metric.
func (m *Metrics) SetActiveWorkers(count int) {
	m.ActiveWorkers.Set(float64(count))
}

// SetQueuedJobs updates the queued jobs metric.
func (m *Metrics) SetQueuedJobs(count int) {
	m.QueuedJobs.Set(float64(count))
}

// IncJobsInFlight increments the in-flight jobs gauge.
func (m *Metrics) IncJobsInFlight() {
	m.JobsInFlight.Inc()
}

// DecJobsInFlight decrements the in-flight jobs gauge.
func (m *Metrics) DecJobsInFlight() {
	m.JobsInFlight.Dec()
}

// IncSavesFailed counts a response that could not be saved.
func (m *Metrics) IncSavesFailed() {
	m.SavesFailed.Inc()
}
