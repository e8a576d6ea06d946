package report_test

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sensorstats/internal/engine"
	"github.com/Sumatoshi-tech/sensorstats/internal/report"
	"github.com/Sumatoshi-tech/sensorstats/pkg/alg/stats"
)

func group(site, device, metric string, count uint64, mean, min, max, std float64) engine.GroupStats {
	return engine.GroupStats{
		Key:       engine.GroupKey{Site: site, Device: device, Metric: metric},
		Finalized: stats.Finalized{Count: count, Mean: mean, Min: min, Max: max, Std: std},
	}
}

func parseCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()

	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)

	return records
}

func TestWriteAggregated_SortedByKey(t *testing.T) {
	t.Parallel()

	groups := []engine.GroupStats{
		group("s2", "d1", "temp", 3, 2, 1, 3, 1),
		group("s1", "d2", "temp", 1, 5, 5, 5, 0),
		group("s1", "d1", "humidity", 2, 40, 39, 41, 1.4142135623730951),
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteAggregated(&buf, groups))

	records := parseCSV(t, &buf)
	require.Len(t, records, 4)

	assert.Equal(t, []string{
		"site", "device", "metric",
		"value_count", "value_mean", "value_min", "value_max", "value_std",
	}, records[0])

	assert.Equal(t, []string{"s1", "d1", "humidity", "2", "40", "39", "41", "1.4142135623730951"}, records[1])
	assert.Equal(t, []string{"s1", "d2", "temp", "1", "5", "5", "5", "0"}, records[2])
	assert.Equal(t, []string{"s2", "d1", "temp", "3", "2", "1", "3", "1"}, records[3])

	// Input order is untouched.
	assert.Equal(t, "s2", groups[0].Key.Site)
}

func TestWriteTopK_PreservesRankOrder(t *testing.T) {
	t.Parallel()

	groups := []engine.GroupStats{
		group("s9", "d9", "z", 1, 100, 100, 100, 0),
		group("s1", "d1", "a", 1, 50, 50, 50, 0),
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteTopK(&buf, groups))

	records := parseCSV(t, &buf)
	require.Len(t, records, 3)
	assert.Equal(t, "s9", records[1][0])
	assert.Equal(t, "s1", records[2][0])
}

func TestOutlierWriter_StreamsRecords(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	w, err := report.NewOutlierWriter(&buf)
	require.NoError(t, err)

	out := engine.Outlier{
		Reading: engine.Reading{
			Site:      "s1",
			Device:    "d1",
			Metric:    "temperature",
			Timestamp: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
			Value:     99.5,
			Valid:     true,
		},
		Key:       engine.GroupKey{Site: "s1", Device: "d1", Metric: "temp"},
		GroupMean: 10,
		GroupStd:  2,
	}

	require.NoError(t, w.Write(out))
	require.NoError(t, w.Close())
	assert.Equal(t, 1, w.Flagged())

	records := parseCSV(t, &buf)
	require.Len(t, records, 2)

	assert.Equal(t, []string{
		"site", "device", "metric",
		"timestamp", "value", "group_mean", "group_std",
	}, records[0])

	// The canonical group key is reported, not the raw metric label.
	assert.Equal(t, "temp", records[1][2])
	assert.Equal(t, "2024-03-01 12:30:00 +0000 UTC", records[1][3])
	assert.Equal(t, "99.5", records[1][4])
	assert.Equal(t, "10", records[1][5])
	assert.Equal(t, "2", records[1][6])
}

func TestOutlierWriter_EmptyHasHeaderOnly(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	w, err := report.NewOutlierWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1)
	assert.Equal(t, 0, w.Flagged())
}
