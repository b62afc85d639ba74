package mapreduce

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every gauge/counter the Server and its pools expose on an
// optional /metrics endpoint (§ Domain stack). It registers against its own
// registry rather than the global default so tests can spin up multiple
// Servers without collector-already-registered panics.
type Metrics struct {
	registry *prometheus.Registry

	JobsAccepted  prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter

	WorkerQueueDepth prometheus.Gauge
	WorkerInFlight   prometheus.Gauge
	MasterInFlight   prometheus.Gauge
}

// NewMetrics builds and registers every collector.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		JobsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mrcoordinator_jobs_accepted_total",
			Help: "Jobs accepted via a type-1 apply message.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mrcoordinator_jobs_completed_total",
			Help: "Jobs that reported completion via type-7.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mrcoordinator_jobs_failed_total",
			Help: "Jobs that reported failure via type-8.",
		}),
		WorkerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mrcoordinator_worker_pool_queue_depth",
			Help: "Pending sub-tasks waiting for a free worker slot.",
		}),
		WorkerInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mrcoordinator_worker_pool_in_flight",
			Help: "Sub-tasks currently executing in the worker pool.",
		}),
		MasterInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mrcoordinator_master_pool_in_flight",
			Help: "Masters currently executing in the master pool.",
		}),
	}
	reg.MustRegister(m.JobsAccepted, m.JobsCompleted, m.JobsFailed,
		m.WorkerQueueDepth, m.WorkerInFlight, m.MasterInFlight)
	return m
}

// Handler serves the registered collectors in the Prometheus exposition
// format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
