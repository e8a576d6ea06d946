package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sensorstats/pkg/alg/stats"
)

func groupStats(site, device, metric string, mean, std float64) GroupStats {
	return GroupStats{
		Key:       GroupKey{Site: site, Device: device, Metric: metric},
		Finalized: stats.Finalized{Count: 2, Mean: mean, Std: std},
	}
}

func TestTopKByMean_DistinctMeans(t *testing.T) {
	t.Parallel()

	// 15 groups with distinct means: top 10 are the largest, descending.
	groups := make([]GroupStats, 0, 15)
	for i := range 15 {
		groups = append(groups, groupStats("s", fmt.Sprintf("d%02d", i), "m", float64(i), 0))
	}

	top := TopKByMean(groups, TopK)

	require.Len(t, top, 10)

	for i, g := range top {
		assert.InDelta(t, float64(14-i), g.Mean, 1e-12)
	}
}

func TestTopKByMean_TieBrokenByKeyOrder(t *testing.T) {
	t.Parallel()

	groups := []GroupStats{
		groupStats("s", "d2", "m", 5, 0),
		groupStats("s", "d1", "m", 5, 0),
		groupStats("s", "d3", "m", 9, 0),
	}

	top := TopKByMean(groups, 2)

	require.Len(t, top, 2)
	assert.Equal(t, "d3", top[0].Key.Device)
	assert.Equal(t, "d1", top[1].Key.Device, "tie resolves to the smaller key")
}

func TestTopKByMean_FewerGroupsThanK(t *testing.T) {
	t.Parallel()

	groups := []GroupStats{
		groupStats("s", "d1", "m", 1, 0),
		groupStats("s", "d2", "m", 2, 0),
	}

	top := TopKByMean(groups, TopK)

	require.Len(t, top, 2)
	assert.InDelta(t, 2.0, top[0].Mean, 1e-12)
}

func TestTopKByStd_Ranking(t *testing.T) {
	t.Parallel()

	groups := []GroupStats{
		groupStats("s", "d1", "m", 0, 1.5),
		groupStats("s", "d2", "m", 0, 4.0),
		groupStats("s", "d3", "m", 0, 0.25),
	}

	top := TopKByStd(groups, TopK)

	require.Len(t, top, 3)
	assert.Equal(t, "d2", top[0].Key.Device)
	assert.Equal(t, "d1", top[1].Key.Device)
	assert.Equal(t, "d3", top[2].Key.Device)
}

func TestTopK_InputUnchanged(t *testing.T) {
	t.Parallel()

	groups := []GroupStats{
		groupStats("s", "d1", "m", 1, 0),
		groupStats("s", "d2", "m", 9, 0),
	}

	_ = TopKByMean(groups, 1)

	assert.Equal(t, "d1", groups[0].Key.Device, "selector must not reorder its input")
}
