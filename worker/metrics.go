package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Processed counter status label values.
const (
	outcomeDone    = "done"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

// Metrics holds the worker's Prometheus instruments.
type Metrics struct {
	// Processed counts tasks by final disposition and agent type.
	// status is done, failed or skipped (idempotent duplicate).
	Processed *prometheus.CounterVec

	// Poisoned counts malformed messages acked and dropped.
	Poisoned prometheus.Counter

	// Published counts outcome publishes by success.
	Published *prometheus.CounterVec

	// InFlight tracks tasks currently holding a permit.
	InFlight prometheus.Gauge

	// Duration observes end-to-end task processing latency.
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the worker metrics, registered on reg. A nil
// registerer creates unregistered instruments, which tests use to
// avoid duplicate-registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Processed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentq_tasks_processed_total",
			Help: "Tasks processed by final status and agent type",
		}, []string{"status", "agent_type"}),
		Poisoned: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentq_messages_poisoned_total",
			Help: "Malformed messages acknowledged and dropped",
		}),
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentq_outcomes_published_total",
			Help: "Outcome messages published to the result topic",
		}, []string{"success"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentq_tasks_inflight",
			Help: "Tasks currently executing under the admission gate",
		}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentq_task_duration_seconds",
			Help:    "End-to-end task processing duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent_type"}),
	}
}
