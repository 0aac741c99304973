package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// prometheusCollector records into an inner collector and mirrors every
// search onto Prometheus instruments.
type prometheusCollector struct {
	Collector
	episodes     prometheus.Counter
	fullPlayouts prometheus.Counter
	searches     *prometheus.CounterVec
	duration     prometheus.Histogram
	treeSize     prometheus.Gauge
}

// NewPrometheusCollector registers the planner instruments with reg.
func NewPrometheusCollector(reg prometheus.Registerer) Collector {
	factory := promauto.With(reg)
	return &prometheusCollector{
		Collector: NewCollector(),
		episodes: factory.NewCounter(prometheus.CounterOpts{
			Name: "pomcp_simulations_total",
			Help: "Simulations run from the search root",
		}),
		fullPlayouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "pomcp_full_playouts_total",
			Help: "Rollouts that reached a terminal state before the horizon",
		}),
		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pomcp_searches_total",
			Help: "Completed searches by whether the tree was reset",
		}, []string{"tree"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pomcp_search_duration_seconds",
			Help:    "Wall-clock duration of a search",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		treeSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pomcp_tree_nodes",
			Help: "Nodes in the search tree after the last search",
		}),
	}
}

func (m *prometheusCollector) AddEpisode() {
	m.Collector.AddEpisode()
	m.episodes.Inc()
}

func (m *prometheusCollector) AddFullPlayout() {
	m.Collector.AddFullPlayout()
	m.fullPlayouts.Inc()
}

func (m *prometheusCollector) Complete(treeSize int) SearchMetric {
	metric := m.Collector.Complete(treeSize)
	tree := "reused"
	if metric.IsTreeReset {
		tree = "reset"
	}
	m.searches.WithLabelValues(tree).Inc()
	m.duration.Observe(metric.Duration.Seconds())
	m.treeSize.Set(float64(treeSize))
	return metric
}
