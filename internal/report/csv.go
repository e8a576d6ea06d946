// Package report renders aggregation results: CSV exports, terminal tables,
// HTML charts, and the run manifest.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/Sumatoshi-tech/sensorstats/internal/engine"
)

// statsHeader are the columns of the aggregated and top-k CSV exports.
var statsHeader = []string{
	"site", "device", "metric",
	"value_count", "value_mean", "value_min", "value_max", "value_std",
}

// outlierHeader are the columns of the streaming outlier export.
var outlierHeader = []string{
	"site", "device", "metric",
	"timestamp", "value", "group_mean", "group_std",
}

// WriteAggregated writes every group's finalized statistics, sorted by group
// key so the export is diffable across runs.
func WriteAggregated(w io.Writer, groups []engine.GroupStats) error {
	sorted := make([]engine.GroupStats, len(groups))
	copy(sorted, groups)
	slices.SortFunc(sorted, func(a, b engine.GroupStats) int {
		return a.Key.Compare(b.Key)
	})

	return writeStats(w, sorted)
}

// WriteTopK writes a ranked slice of groups in the given order.
func WriteTopK(w io.Writer, groups []engine.GroupStats) error {
	return writeStats(w, groups)
}

func writeStats(w io.Writer, groups []engine.GroupStats) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(statsHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, g := range groups {
		record := []string{
			g.Key.Site,
			g.Key.Device,
			g.Key.Metric,
			strconv.FormatUint(g.Count, 10),
			formatFloat(g.Mean),
			formatFloat(g.Min),
			formatFloat(g.Max),
			formatFloat(g.Std),
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	return nil
}

// OutlierWriter streams flagged readings to CSV as the detection pass emits
// them, keeping memory flat regardless of how many rows are flagged.
type OutlierWriter struct {
	cw      *csv.Writer
	flagged int
}

// NewOutlierWriter writes the header and returns a streaming writer.
func NewOutlierWriter(w io.Writer) (*OutlierWriter, error) {
	cw := csv.NewWriter(w)

	if err := cw.Write(outlierHeader); err != nil {
		return nil, fmt.Errorf("write outlier header: %w", err)
	}

	return &OutlierWriter{cw: cw}, nil
}

// Write appends one flagged reading.
func (o *OutlierWriter) Write(out engine.Outlier) error {
	record := []string{
		out.Key.Site,
		out.Key.Device,
		out.Key.Metric,
		out.Reading.Timestamp.UTC().Format("2006-01-02 15:04:05 -0700 UTC"),
		formatFloat(out.Reading.Value),
		formatFloat(out.GroupMean),
		formatFloat(out.GroupStd),
	}

	if err := o.cw.Write(record); err != nil {
		return fmt.Errorf("write outlier record: %w", err)
	}

	o.flagged++

	return nil
}

// Flagged returns how many readings were written so far.
func (o *OutlierWriter) Flagged() int {
	return o.flagged
}

// Close flushes buffered records.
func (o *OutlierWriter) Close() error {
	o.cw.Flush()

	if err := o.cw.Error(); err != nil {
		return fmt.Errorf("flush outlier csv: %w", err)
	}

	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
