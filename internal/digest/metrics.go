package digest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricRankingPasses      = "digest_ranking_passes_total"
	MetricRankedItems        = "digest_ranked_items_total"
	MetricSelections         = "digest_selections_total"
	MetricBackfillAdmissions = "digest_backfill_admissions_total"
	MetricRankingLatency     = "digest_ranking_latency_seconds"
)

// Metrics contains Prometheus metrics for ranking and selection.
// All operations are thread-safe.
type Metrics struct {
	rankingPasses      prometheus.Counter
	rankedItems        prometheus.Counter
	selections         prometheus.Counter
	backfillAdmissions prometheus.Counter
	rankingLatency     prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		rankingPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRankingPasses,
			Help: "Total number of category ranking passes",
		}),
		rankedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRankedItems,
			Help: "Total number of items scored across ranking passes",
		}),
		selections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSelections,
			Help: "Total number of diversity selections served",
		}),
		backfillAdmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricBackfillAdmissions,
			Help: "Total number of items admitted by the cap-relaxing backfill pass",
		}),
		rankingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRankingLatency,
			Help:    "Histogram of ranking pass latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.rankingPasses,
		m.rankedItems,
		m.selections,
		m.backfillAdmissions,
		m.rankingLatency,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRankingPass records one completed ranking pass.
func (m *Metrics) ObserveRankingPass(latency time.Duration, items int) {
	m.rankingPasses.Inc()
	m.rankedItems.Add(float64(items))
	m.rankingLatency.Observe(latency.Seconds())
}

// ObserveSelection records one completed selection.
func (m *Metrics) ObserveSelection(selected, backfilled int) {
	m.selections.Inc()
	m.backfillAdmissions.Add(float64(backfilled))
}
