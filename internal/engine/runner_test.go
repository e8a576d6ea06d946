package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource is an in-memory BlockSource for tests. Replayable.
type sliceSource struct {
	blocks []Block
}

func (s *sliceSource) ForEachBlock(ctx context.Context, fn func(Block) error) error {
	for _, b := range s.blocks {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := fn(b); err != nil {
			return err
		}
	}

	return nil
}

func syntheticBlocks(t *testing.T, blockSize int) *sliceSource {
	t.Helper()

	var readings []Reading

	for i := range 100 {
		site := fmt.Sprintf("site-%d", i%3)
		device := fmt.Sprintf("dev-%d", i%4)

		metric := "temp"
		if i%10 == 0 {
			metric = "temperature"
		}

		readings = append(readings, reading(site, device, metric, float64(i)*1.25-30))
	}

	source := &sliceSource{}

	index := 0
	for start := 0; start < len(readings); start += blockSize {
		end := min(start+blockSize, len(readings))
		source.blocks = append(source.blocks, Block{Readings: readings[start:end], Index: index})

		index++
	}

	return source
}

func TestEngine_AggregateSequential(t *testing.T) {
	t.Parallel()

	source := syntheticBlocks(t, 7)
	eng := &Engine{Criteria: Criteria{}}

	state, err := eng.Aggregate(context.Background(), source)
	require.NoError(t, err)

	assert.Equal(t, uint64(100), state.RowsRead)
	assert.Positive(t, state.GroupCount())
}

func TestEngine_ParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{2, 4, 8} {
		t.Run(fmt.Sprintf("workers_%d", workers), func(t *testing.T) {
			t.Parallel()

			source := syntheticBlocks(t, 9)

			sequential, err := (&Engine{Criteria: Criteria{}}).Aggregate(context.Background(), source)
			require.NoError(t, err)

			parallel, err := (&Engine{Criteria: Criteria{}, Workers: workers}).Aggregate(context.Background(), source)
			require.NoError(t, err)

			wantGroups := sequential.Finalize()
			gotGroups := parallel.Finalize()

			require.Equal(t, len(wantGroups), len(gotGroups))

			for i, want := range wantGroups {
				got := gotGroups[i]

				assert.Equal(t, want.Key, got.Key, "group order must match the sequential path")
				assert.Equal(t, want.Count, got.Count)
				assert.InDelta(t, want.Mean, got.Mean, 1e-9)
				assert.InDelta(t, want.Std, got.Std, 1e-9)
			}

			assert.Equal(t, sequential.RowsRead, parallel.RowsRead)
			assert.Equal(t, sequential.RowsFiltered, parallel.RowsFiltered)
		})
	}
}

func TestEngine_ParallelResumedMidStream(t *testing.T) {
	t.Parallel()

	full := syntheticBlocks(t, 10)

	want, err := (&Engine{Criteria: Criteria{}}).Aggregate(context.Background(), full)
	require.NoError(t, err)

	// Fold the first four blocks sequentially, then hand the tail (with its
	// original indices) to the parallel path, as a snapshot resume does.
	resumed := NewGlobalState(Criteria{})
	head := &sliceSource{blocks: full.blocks[:4]}
	require.NoError(t, (&Engine{Criteria: Criteria{}}).AggregateInto(context.Background(), head, resumed))

	tail := &sliceSource{blocks: full.blocks[4:]}
	require.NoError(t, (&Engine{Criteria: Criteria{}, Workers: 4}).AggregateInto(context.Background(), tail, resumed))

	assert.Equal(t, want.RowsRead, resumed.RowsRead)
	assert.Equal(t, want.Finalize(), resumed.Finalize())
}

func TestEngine_OnBlockMergedFiresAtBlockBoundaries(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers_%d", workers), func(t *testing.T) {
			t.Parallel()

			source := syntheticBlocks(t, 9)

			var (
				indexes []int
				rowsAt  []uint64
			)

			eng := &Engine{
				Criteria: Criteria{},
				Workers:  workers,
				OnBlockMerged: func(state *GlobalState, index int) error {
					indexes = append(indexes, index)
					rowsAt = append(rowsAt, state.RowsRead)

					return nil
				},
			}

			state, err := eng.Aggregate(context.Background(), source)
			require.NoError(t, err)

			require.Len(t, indexes, len(source.blocks))

			var rows uint64

			for i, block := range source.blocks {
				rows += uint64(len(block.Readings))

				assert.Equal(t, block.Index, indexes[i], "callbacks must arrive in stream order")
				assert.Equal(t, rows, rowsAt[i], "state must sit at a block boundary during the callback")
			}

			assert.Equal(t, state.RowsRead, rowsAt[len(rowsAt)-1])
		})
	}
}

func TestEngine_OnBlockMergedErrorAbortsPass(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("checkpoint disk full")

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers_%d", workers), func(t *testing.T) {
			t.Parallel()

			calls := 0
			eng := &Engine{
				Criteria: Criteria{},
				Workers:  workers,
				OnBlockMerged: func(*GlobalState, int) error {
					calls++
					if calls == 3 {
						return wantErr
					}

					return nil
				},
			}

			_, err := eng.Aggregate(context.Background(), syntheticBlocks(t, 10))

			require.Error(t, err)
			assert.ErrorIs(t, err, wantErr)
		})
	}
}

func TestEngine_AggregateRejectsInvalidCriteria(t *testing.T) {
	t.Parallel()

	source := syntheticBlocks(t, 10)
	eng := &Engine{Criteria: Criteria{
		TimeStart: ts("2024-06-01T00:00:00Z"),
		TimeEnd:   ts("2024-05-01T00:00:00Z"),
	}}

	_, err := eng.Aggregate(context.Background(), source)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTimeRange)
}

func TestEngine_SourceErrorPropagates(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("disk gone")
	source := &failingSource{failAt: 2, err: wantErr}

	_, err := (&Engine{Criteria: Criteria{}}).Aggregate(context.Background(), source)

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestEngine_SourceErrorPropagatesParallel(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("disk gone")
	source := &failingSource{failAt: 2, err: wantErr}

	_, err := (&Engine{Criteria: Criteria{}, Workers: 3}).Aggregate(context.Background(), source)

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

// failingSource yields empty blocks until failAt, then fails.
type failingSource struct {
	failAt int
	err    error
}

func (s *failingSource) ForEachBlock(_ context.Context, fn func(Block) error) error {
	for i := range s.failAt {
		if err := fn(Block{Index: i}); err != nil {
			return err
		}
	}

	return s.err
}

func TestEngine_ClassifyOutliersStreamsToSink(t *testing.T) {
	t.Parallel()

	var calm []Reading
	for i := range 14 {
		calm = append(calm, reading("a", "d1", "temp", float64(1+i%3)))
	}

	source := &sliceSource{blocks: []Block{
		{Readings: calm, Index: 0},
		blockOf(1, reading("a", "d1", "temp", 1000)),
	}}

	eng := &Engine{Criteria: Criteria{}}

	state, err := eng.Aggregate(context.Background(), source)
	require.NoError(t, err)

	classifier := NewOutlierClassifier(state, state.Finalize())

	var flagged []Outlier

	sinkErr := eng.ClassifyOutliers(context.Background(), source, classifier, func(o Outlier) error {
		flagged = append(flagged, o)

		return nil
	})
	require.NoError(t, sinkErr)

	require.Len(t, flagged, 1)
	assert.InDelta(t, 1000.0, flagged[0].Reading.Value, 1e-12)
}

func TestEngine_ClassifyOutliersSinkErrorStops(t *testing.T) {
	t.Parallel()

	var rows []Reading
	for i := range 14 {
		rows = append(rows, reading("a", "d1", "temp", float64(1+i%3)))
	}

	rows = append(rows, reading("a", "d1", "temp", 900))
	source := &sliceSource{blocks: []Block{{Readings: rows, Index: 0}}}

	eng := &Engine{Criteria: Criteria{}}

	state, err := eng.Aggregate(context.Background(), source)
	require.NoError(t, err)

	classifier := NewOutlierClassifier(state, state.Finalize())

	wantErr := errors.New("sink full")

	sinkErr := eng.ClassifyOutliers(context.Background(), source, classifier, func(Outlier) error {
		return wantErr
	})

	assert.ErrorIs(t, sinkErr, wantErr)
}
