package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// BlockSource supplies the engine with an ordered, finite sequence of
// reading blocks. Calling ForEachBlock again replays the sequence from the
// start, which is how the second (outlier) pass re-reads the data without
// the engine ever materializing it.
type BlockSource interface {
	// ForEachBlock invokes fn for every block in order, stopping at the
	// first error. The engine consumes blocks synchronously; fn owns the
	// block only for the duration of the call.
	ForEachBlock(ctx context.Context, fn func(Block) error) error
}

// blockChannelSize is the fan-out lookahead: how many folded blocks may be
// in flight ahead of the merging coordinator.
const blockChannelSize = 2

// Engine orchestrates the two processing passes over a block source.
type Engine struct {
	// Criteria is the row filter, validated before the first block.
	Criteria Criteria

	// Workers is the block fan-out width. Values <= 1 select the
	// single-threaded path.
	Workers int

	// Logger receives per-block progress at Debug level. Nil disables.
	Logger *slog.Logger

	// OnBlockMerged, when set, runs after each block has been folded into
	// the state, in stream order. The state is at a block boundary for the
	// duration of the call, so callers may checkpoint it. Returning an
	// error aborts the pass.
	OnBlockMerged func(state *GlobalState, index int) error
}

// Aggregate runs pass one: it folds every block from the source into a
// single global state and returns it, ready to be frozen and finalized.
func (e *Engine) Aggregate(ctx context.Context, source BlockSource) (*GlobalState, error) {
	if err := e.Criteria.Validate(); err != nil {
		return nil, err
	}

	state := NewGlobalState(e.Criteria)

	if err := e.AggregateInto(ctx, source, state); err != nil {
		return nil, err
	}

	return state, nil
}

// AggregateInto folds every block from the source into an existing state,
// used when resuming from a snapshot mid-stream.
func (e *Engine) AggregateInto(ctx context.Context, source BlockSource, state *GlobalState) error {
	if e.Workers > 1 {
		return e.aggregateParallel(ctx, source, state)
	}

	return source.ForEachBlock(ctx, func(block Block) error {
		state.AggregateBlock(block)
		e.logBlock(ctx, block, state)

		return e.blockMerged(state, block.Index)
	})
}

func (e *Engine) blockMerged(state *GlobalState, index int) error {
	if e.OnBlockMerged == nil {
		return nil
	}

	return e.OnBlockMerged(state, index)
}

// ClassifyOutliers runs pass two: it replays the source through the
// classifier and hands every flagged reading to sink, in stream order.
func (e *Engine) ClassifyOutliers(
	ctx context.Context,
	source BlockSource,
	classifier *OutlierClassifier,
	sink func(Outlier) error,
) error {
	return source.ForEachBlock(ctx, func(block Block) error {
		for _, o := range classifier.ClassifyBlock(block) {
			if err := sink(o); err != nil {
				return fmt.Errorf("write outlier: %w", err)
			}
		}

		return nil
	})
}

func (e *Engine) logBlock(ctx context.Context, block Block, state *GlobalState) {
	if e.Logger == nil {
		return
	}

	e.Logger.DebugContext(ctx, "engine: block merged",
		"block", block.Index+1,
		"rows", len(block.Readings),
		"groups", state.GroupCount(),
	)
}

// aggregateParallel fans blocks out to Workers goroutines that fold blocks
// into private partial results, and merges the partials back into state in
// block order. In-order merging keeps metric-prefix discovery and group
// insertion order identical to the sequential path, so results are
// reproducible regardless of worker scheduling.
func (e *Engine) aggregateParallel(ctx context.Context, source BlockSource, state *GlobalState) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	blocks := make(chan Block, blockChannelSize)
	results := make(chan *BlockResult, blockChannelSize)

	var workers sync.WaitGroup

	for range e.Workers {
		workers.Add(1)

		go func() {
			defer workers.Done()

			for block := range blocks {
				select {
				case results <- FoldBlock(block, e.Criteria):
				case <-runCtx.Done():
					return
				}
			}
		}()
	}

	produceErr := make(chan error, 1)

	// baseIndex carries the stream's first block index; a resumed source
	// starts mid-stream. Sent before the first block, so it is always
	// available once any result arrives.
	baseIndex := make(chan int, 1)

	go func() {
		defer close(blocks)

		sent := false

		produceErr <- source.ForEachBlock(runCtx, func(block Block) error {
			if !sent {
				baseIndex <- block.Index
				sent = true
			}

			select {
			case blocks <- block:
				return nil
			case <-runCtx.Done():
				return runCtx.Err()
			}
		})
	}()

	go func() {
		workers.Wait()
		close(results)
	}()

	// Merge folded blocks strictly in stream order; out-of-order arrivals
	// wait in the pending set.
	pending := make(map[int]*BlockResult)
	next := -1

	var mergeErr error

	for result := range results {
		if mergeErr != nil {
			continue
		}

		if next < 0 {
			next = <-baseIndex
		}

		pending[result.Index] = result

		for {
			ready, ok := pending[next]
			if !ok {
				break
			}

			delete(pending, next)
			state.MergeBlock(ready)

			if err := e.blockMerged(state, next); err != nil {
				mergeErr = err

				cancel()

				break
			}

			next++
		}
	}

	produced := <-produceErr

	if mergeErr != nil {
		return mergeErr
	}

	if produced != nil {
		return produced
	}

	return runCtx.Err()
}
