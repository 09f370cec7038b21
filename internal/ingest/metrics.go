package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricPolls        = "ingest_polls_total"
	MetricPollFailures = "ingest_poll_failures_total"
	MetricItems        = "ingest_items_total"
	MetricNewItems     = "ingest_new_items_total"
	MetricJudgments    = "ingest_judgments_saved_total"
	MetricPollLatency  = "ingest_poll_latency_seconds"
)

// Metrics contains Prometheus metrics for the ingest pipeline.
// All operations are thread-safe.
type Metrics struct {
	polls        prometheus.Counter
	pollFailures prometheus.Counter
	items        prometheus.Counter
	newItems     prometheus.Counter
	judgments    prometheus.Counter
	pollLatency  prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPolls,
			Help: "Total number of category polls completed",
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPollFailures,
			Help: "Total number of category polls that failed",
		}),
		items: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricItems,
			Help: "Total number of items seen across polls, newsletters expanded",
		}),
		newItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricNewItems,
			Help: "Total number of newly inserted items",
		}),
		judgments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricJudgments,
			Help: "Total number of judgments persisted",
		}),
		pollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricPollLatency,
			Help:    "Histogram of category poll latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.polls,
		m.pollFailures,
		m.items,
		m.newItems,
		m.judgments,
		m.pollLatency,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObservePoll records one completed category poll.
func (m *Metrics) ObservePoll(latency time.Duration, items, newItems, judgments int) {
	m.polls.Inc()
	m.items.Add(float64(items))
	m.newItems.Add(float64(newItems))
	m.judgments.Add(float64(judgments))
	m.pollLatency.Observe(latency.Seconds())
}

// ObservePollFailure records one failed category poll.
func (m *Metrics) ObservePollFailure() {
	m.pollFailures.Inc()
}
