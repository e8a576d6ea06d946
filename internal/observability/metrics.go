package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/sensorstats/pkg/safeconv"
)

const (
	metricRowsRead     = "sensorstats.rows.read"
	metricRowsFiltered = "sensorstats.rows.filtered"
	metricRowsInvalid  = "sensorstats.rows.invalid"
	metricBlocksFolded = "sensorstats.blocks.folded"
	metricGroupsActive = "sensorstats.groups.active"
	metricOutliers     = "sensorstats.outliers.flagged"
)

// RunMetrics holds the OTel instruments for a single aggregation run.
type RunMetrics struct {
	rowsRead     metric.Int64Counter
	rowsFiltered metric.Int64Counter
	rowsInvalid  metric.Int64Counter
	blocksFolded metric.Int64Counter
	groupsActive metric.Int64Gauge
	outliers     metric.Int64Counter
}

// NewRunMetrics creates the run-level metric instruments from the given meter.
func NewRunMetrics(mt metric.Meter) (*RunMetrics, error) {
	rowsRead, err := mt.Int64Counter(metricRowsRead,
		metric.WithDescription("Total rows read from the input"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRowsRead, err)
	}

	rowsFiltered, err := mt.Int64Counter(metricRowsFiltered,
		metric.WithDescription("Rows excluded by the filter criteria"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRowsFiltered, err)
	}

	rowsInvalid, err := mt.Int64Counter(metricRowsInvalid,
		metric.WithDescription("Rows with missing or unparseable values"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRowsInvalid, err)
	}

	blocksFolded, err := mt.Int64Counter(metricBlocksFolded,
		metric.WithDescription("Input blocks folded into the global state"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricBlocksFolded, err)
	}

	groupsActive, err := mt.Int64Gauge(metricGroupsActive,
		metric.WithDescription("Distinct groups tracked after canonicalization"),
		metric.WithUnit("{group}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricGroupsActive, err)
	}

	outliers, err := mt.Int64Counter(metricOutliers,
		metric.WithDescription("Readings flagged as outliers in the detection pass"),
		metric.WithUnit("{reading}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOutliers, err)
	}

	return &RunMetrics{
		rowsRead:     rowsRead,
		rowsFiltered: rowsFiltered,
		rowsInvalid:  rowsInvalid,
		blocksFolded: blocksFolded,
		groupsActive: groupsActive,
		outliers:     outliers,
	}, nil
}

// RecordAggregation reports the counters of a finished aggregation pass.
func (m *RunMetrics) RecordAggregation(ctx context.Context, rowsRead, rowsFiltered, rowsInvalid uint64, blocks, groups int) {
	m.rowsRead.Add(ctx, safeconv.MustUint64ToInt64(rowsRead))
	m.rowsFiltered.Add(ctx, safeconv.MustUint64ToInt64(rowsFiltered))
	m.rowsInvalid.Add(ctx, safeconv.MustUint64ToInt64(rowsInvalid))
	m.blocksFolded.Add(ctx, int64(blocks))
	m.groupsActive.Record(ctx, int64(groups))
}

// RecordOutliers reports the number of readings flagged in the detection pass.
func (m *RunMetrics) RecordOutliers(ctx context.Context, flagged int) {
	m.outliers.Add(ctx, int64(flagged))
}
