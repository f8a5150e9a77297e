package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records hit/miss and latency statistics for one store tier,
// exported as Prometheus collectors rather than the JSON snapshot the
// reference cache's MetricsCollector produced.
type Metrics struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	operations *prometheus.HistogramVec
}

// NewMetrics builds a Metrics instance labelled by tier (e.g.
// "responses", "queryPaths", "dataEntities"); tier may be empty for
// stores that do not register with a global registry.
func NewMetrics(tier string) *Metrics {
	constLabels := prometheus.Labels{}
	if tier != "" {
		constLabels["tier"] = tier
	}

	return &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "graphqlcache",
			Subsystem:   "store",
			Name:        "hits_total",
			Help:        "Number of cache hits against this store tier.",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "graphqlcache",
			Subsystem:   "store",
			Name:        "misses_total",
			Help:        "Number of cache misses against this store tier.",
			ConstLabels: constLabels,
		}),
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "graphqlcache",
			Subsystem:   "store",
			Name:        "operation_duration_seconds",
			Help:        "Latency of store operations by kind.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Register registers all of m's collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.hits, m.misses, m.operations} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) RecordHit()  { m.hits.Inc() }
func (m *Metrics) RecordMiss() { m.misses.Inc() }

func (m *Metrics) RecordOperation(operation string, d time.Duration) {
	m.operations.WithLabelValues(operation).Observe(d.Seconds())
}
