package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/sensorstats/internal/config"
	"github.com/Sumatoshi-tech/sensorstats/internal/csvsource"
	"github.com/Sumatoshi-tech/sensorstats/internal/engine"
	"github.com/Sumatoshi-tech/sensorstats/internal/observability"
	"github.com/Sumatoshi-tech/sensorstats/internal/report"
	"github.com/Sumatoshi-tech/sensorstats/internal/snapshot"
	"github.com/Sumatoshi-tech/sensorstats/pkg/version"
)

// runState carries everything a single run needs across its stages.
type runState struct {
	cfg       *config.Config
	criteria  engine.Criteria
	providers observability.Providers
	out       io.Writer
	quiet     bool

	fingerprint  string
	resumed      bool
	blocksFolded int
	artifacts    []string
}

// execute drives the full pipeline: aggregation pass, artifact exports, and
// the optional outlier pass.
func (r *runState) execute(ctx context.Context) error {
	logger := r.providers.Logger

	reader := &csvsource.Reader{Path: r.cfg.Input, ChunkSize: r.cfg.ChunkSize}

	fingerprint, err := reader.Fingerprint()
	if err != nil {
		return err
	}

	r.fingerprint = fingerprint

	eng := &engine.Engine{
		Criteria:      r.criteria,
		Workers:       r.cfg.Workers,
		Logger:        logger,
		OnBlockMerged: r.blockMerged,
	}

	ctx, runSpan := r.providers.Tracer.Start(ctx, "sensorstats.run",
		trace.WithAttributes(
			attribute.String("input.path", r.cfg.Input),
			attribute.Int("input.chunk_size", r.cfg.ChunkSize),
			attribute.Int("run.workers", r.cfg.Workers),
		))
	defer runSpan.End()

	started := time.Now()

	aggCtx, aggSpan := r.providers.Tracer.Start(ctx, "sensorstats.aggregate")

	state, err := r.aggregate(aggCtx, eng, reader)

	aggSpan.End()

	if err != nil {
		return err
	}

	logger.Info("aggregation pass complete",
		"rows_read", state.RowsRead,
		"rows_filtered", state.RowsFiltered,
		"rows_invalid", state.RowsInvalid,
		"groups", state.GroupCount(),
		"resumed", r.resumed,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	if r.cfg.Snapshot.Enabled {
		snap := snapshot.Capture(state, r.fingerprint, state.RowsRead, true)
		if err := snapshot.Save(r.cfg.Snapshot.Dir, snap); err != nil {
			return err
		}

		logger.Debug("snapshot saved", "dir", r.cfg.Snapshot.Dir)
	}

	groups := state.Finalize()
	topMean := engine.TopKByMean(groups, engine.TopK)
	topStd := engine.TopKByStd(groups, engine.TopK)

	if err := r.writeStatsArtifacts(groups, topMean, topStd); err != nil {
		return err
	}

	flagged := 0

	if r.cfg.Outliers.Enabled {
		outlierCtx, outlierSpan := r.providers.Tracer.Start(ctx, "sensorstats.outliers")

		flagged, err = r.classifyOutliers(outlierCtx, eng, state, groups)

		outlierSpan.SetAttributes(attribute.Int("outliers.flagged", flagged))
		outlierSpan.End()

		if err != nil {
			return err
		}

		logger.Info("outlier pass complete", "flagged", flagged)
	}

	r.recordMetrics(ctx, state, flagged)

	if err := r.writeManifest(state, groups, flagged); err != nil {
		return err
	}

	if !r.quiet {
		report.RenderRanking(r.out, "Top 10 groups by mean", topMean)
		report.RenderRanking(r.out, "Top 10 groups by standard deviation", topStd)
		report.RenderSummary(r.out, report.Summary{
			RowsRead:     state.RowsRead,
			RowsFiltered: state.RowsFiltered,
			RowsInvalid:  state.RowsInvalid,
			Groups:       len(groups),
			Outliers:     flagged,
			OutlierPass:  r.cfg.Outliers.Enabled,
		})
	}

	return nil
}

// aggregate runs pass one, resuming from a snapshot when one matches the
// input and criteria. A snapshot that no longer matches is ignored, not
// fatal: the run falls back to a full pass.
func (r *runState) aggregate(
	ctx context.Context, eng *engine.Engine, reader *csvsource.Reader,
) (*engine.GlobalState, error) {
	logger := r.providers.Logger

	if r.cfg.Snapshot.Enabled && r.cfg.Snapshot.Resume {
		snap, err := snapshot.Load(r.cfg.Snapshot.Dir)
		if err != nil {
			return nil, err
		}

		if snap != nil {
			state := engine.NewGlobalState(r.criteria)

			applyErr := snap.Apply(state, r.fingerprint)

			switch {
			case errors.Is(applyErr, snapshot.ErrFingerprintMismatch),
				errors.Is(applyErr, snapshot.ErrCriteriaMismatch):
				logger.Warn("snapshot does not match this run, starting over", "reason", applyErr)
			case applyErr != nil:
				return nil, applyErr
			case snap.Complete:
				logger.Info("resumed from complete snapshot, skipping aggregation")
				r.resumed = true

				return state, nil
			default:
				logger.Info("resuming aggregation", "rows_consumed", snap.RowsConsumed)
				r.resumed = true

				resumeReader := &csvsource.Reader{
					Path:      reader.Path,
					ChunkSize: reader.ChunkSize,
					SkipRows:  snap.RowsConsumed,
				}

				if err := eng.AggregateInto(ctx, resumeReader, state); err != nil {
					r.checkpointOnInterrupt(err, state)

					return nil, err
				}

				return state, nil
			}
		}
	}

	state := engine.NewGlobalState(r.criteria)

	if err := eng.AggregateInto(ctx, reader, state); err != nil {
		r.checkpointOnInterrupt(err, state)

		return nil, err
	}

	return state, nil
}

// blockMerged runs after every block folded in stream order: it counts the
// blocks this process actually merged and, when snapshots are enabled,
// checkpoints the state every IntervalBlocks blocks so an interrupted run
// can resume mid-stream.
func (r *runState) blockMerged(state *engine.GlobalState, index int) error {
	r.blocksFolded++

	if !r.cfg.Snapshot.Enabled || r.blocksFolded%r.cfg.Snapshot.IntervalBlocks != 0 {
		return nil
	}

	snap := snapshot.Capture(state, r.fingerprint, state.RowsRead, false)
	if err := snapshot.Save(r.cfg.Snapshot.Dir, snap); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	r.providers.Logger.Debug("checkpoint saved",
		"block", index+1,
		"rows_consumed", state.RowsRead,
	)

	return nil
}

// checkpointOnInterrupt persists a partial snapshot when pass one is cut
// short by cancellation, so the next run with --resume picks up at the last
// merged block instead of the last periodic checkpoint.
func (r *runState) checkpointOnInterrupt(err error, state *engine.GlobalState) {
	if !r.cfg.Snapshot.Enabled || !errors.Is(err, context.Canceled) {
		return
	}

	snap := snapshot.Capture(state, r.fingerprint, state.RowsRead, false)
	if saveErr := snapshot.Save(r.cfg.Snapshot.Dir, snap); saveErr != nil {
		r.providers.Logger.Warn("interrupt checkpoint failed", "error", saveErr)

		return
	}

	r.providers.Logger.Info("interrupted, state checkpointed",
		"rows_consumed", state.RowsRead)
}

func (r *runState) writeStatsArtifacts(groups, topMean, topStd []engine.GroupStats) error {
	prefix := r.cfg.OutputPrefix

	exports := []struct {
		path  string
		write func(w io.Writer) error
	}{
		{prefix + aggregatedSuffix, func(w io.Writer) error { return report.WriteAggregated(w, groups) }},
		{prefix + topMeanSuffix, func(w io.Writer) error { return report.WriteTopK(w, topMean) }},
		{prefix + topStdSuffix, func(w io.Writer) error { return report.WriteTopK(w, topStd) }},
	}

	if r.cfg.Plot {
		exports = append(exports, struct {
			path  string
			write func(w io.Writer) error
		}{prefix + chartsSuffix, func(w io.Writer) error { return report.WriteCharts(w, topMean, topStd) }})
	}

	for _, export := range exports {
		err := writeFileArtifact(export.path, func(f *os.File) error { return export.write(f) })
		if err != nil {
			return err
		}

		r.artifacts = append(r.artifacts, export.path)
	}

	return nil
}

// classifyOutliers runs pass two against a fresh reader so the full stream
// is replayed regardless of any resume offset used in pass one.
func (r *runState) classifyOutliers(
	ctx context.Context, eng *engine.Engine, state *engine.GlobalState, groups []engine.GroupStats,
) (int, error) {
	classifier := engine.NewOutlierClassifier(state, groups)
	source := &csvsource.Reader{Path: r.cfg.Input, ChunkSize: r.cfg.ChunkSize}

	path := r.cfg.OutputPrefix + outliersSuffix
	flagged := 0

	err := writeFileArtifact(path, func(f *os.File) error {
		writer, err := report.NewOutlierWriter(f)
		if err != nil {
			return err
		}

		if err := eng.ClassifyOutliers(ctx, source, classifier, writer.Write); err != nil {
			return err
		}

		flagged = writer.Flagged()

		return writer.Close()
	})
	if err != nil {
		return 0, err
	}

	r.artifacts = append(r.artifacts, path)

	return flagged, nil
}

func (r *runState) recordMetrics(ctx context.Context, state *engine.GlobalState, flagged int) {
	metrics, err := observability.NewRunMetrics(r.providers.Meter)
	if err != nil {
		r.providers.Logger.Warn("metric instruments unavailable", "error", err)

		return
	}

	metrics.RecordAggregation(ctx, state.RowsRead, state.RowsFiltered, state.RowsInvalid,
		r.blocksFolded, state.GroupCount())
	metrics.RecordOutliers(ctx, flagged)
}

func (r *runState) writeManifest(state *engine.GlobalState, groups []engine.GroupStats, flagged int) error {
	m := &report.Manifest{
		GeneratedAt: time.Now().UTC(),
		Version:     version.Version,
		Resumed:     r.resumed,
	}

	m.Input.Path = r.cfg.Input
	m.Input.Fingerprint = r.fingerprint
	m.Input.ChunkSize = r.cfg.ChunkSize
	m.Input.Workers = r.cfg.Workers

	m.Filter.Site = r.cfg.Filter.Site
	m.Filter.Device = r.cfg.Filter.Device
	m.Filter.Metric = r.cfg.Filter.Metric
	m.Filter.TimeStart = r.cfg.Filter.TimeStart
	m.Filter.TimeEnd = r.cfg.Filter.TimeEnd

	m.Counters.RowsRead = state.RowsRead
	m.Counters.RowsFiltered = state.RowsFiltered
	m.Counters.RowsInvalid = state.RowsInvalid
	m.Counters.Groups = len(groups)
	m.Counters.Outliers = flagged

	path := r.cfg.OutputPrefix + manifestSuffix
	m.Artifacts = append(r.artifacts, path)

	return writeFileArtifact(path, func(f *os.File) error {
		return report.WriteManifest(f, m)
	})
}
