package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg).(*prometheusCollector)

	c.SetTreeReset(true)
	c.Start(1, 10)
	c.AddEpisode()
	c.AddEpisode()
	c.AddFullPlayout()
	first := c.Complete(8)

	c.SetTreeReset(false)
	c.Start(1, 10)
	c.AddEpisode()
	second := c.Complete(12)

	t.Run("returning per-search metrics", func(t *testing.T) {
		require.Equal(t, 2, first.Episodes)
		require.Equal(t, 1, first.FullPlayouts)
		require.Equal(t, 1, second.Episodes)
		require.False(t, second.IsTreeReset)
	})

	t.Run("accumulating totals across searches", func(t *testing.T) {
		require.Equal(t, 3.0, testutil.ToFloat64(c.episodes))
		require.Equal(t, 1.0, testutil.ToFloat64(c.fullPlayouts))
		require.Equal(t, 1.0, testutil.ToFloat64(c.searches.WithLabelValues("reset")))
		require.Equal(t, 1.0, testutil.ToFloat64(c.searches.WithLabelValues("reused")))
		require.Equal(t, 12.0, testutil.ToFloat64(c.treeSize))
	})

	t.Run("registering every instrument", func(t *testing.T) {
		count, err := testutil.GatherAndCount(reg)
		require.NoError(t, err)
		require.Equal(t, 6, count, "Two search series plus one per other instrument")
	})
}
