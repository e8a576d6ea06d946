package engine

import (
	"fmt"

	"github.com/Sumatoshi-tech/sensorstats/pkg/alg/stats"
)

// GroupAccumulator pairs a group key with its sufficient statistics.
type GroupAccumulator struct {
	Key   GroupKey
	Stats stats.Sufficient
}

// Merge folds other into a. Merging statistics for mismatched group keys is
// a programming-contract violation, not a recoverable condition, and panics.
func (a *GroupAccumulator) Merge(other GroupAccumulator) {
	if a.Key != other.Key {
		panic(fmt.Sprintf("engine: merge of mismatched group keys %q and %q", a.Key, other.Key))
	}

	a.Stats.Merge(other.Stats)
}

// BlockResult holds the per-group sufficient statistics produced by folding
// one block of readings. Groups are keyed by the raw metric label; metric
// canonicalization happens when the result is merged into the global state,
// so that block folding stays order-independent.
type BlockResult struct {
	// Index is the block's position in the stream.
	Index int

	groups map[GroupKey]int
	order  []GroupAccumulator

	// RowsRead is the number of readings in the block.
	RowsRead uint64

	// RowsFiltered counts readings excluded by the filter criteria.
	RowsFiltered uint64

	// RowsInvalid counts readings excluded for a missing or NaN value.
	RowsInvalid uint64
}

// FoldBlock applies the row filter to one block and folds every surviving
// reading into a fresh set of per-group accumulators. The metric criterion
// is not applied here: it requires canonical labels, which only the global
// state owns.
func FoldBlock(block Block, criteria Criteria) *BlockResult {
	result := &BlockResult{
		Index:  block.Index,
		groups: make(map[GroupKey]int),
	}

	for _, r := range block.Readings {
		result.RowsRead++

		if !r.HasValue() {
			result.RowsInvalid++

			continue
		}

		if !criteria.MatchesRow(r) {
			result.RowsFiltered++

			continue
		}

		key := GroupKey{Site: r.Site, Device: r.Device, Metric: r.Metric}

		idx, ok := result.groups[key]
		if !ok {
			idx = len(result.order)
			result.groups[key] = idx
			result.order = append(result.order, GroupAccumulator{Key: key})
		}

		result.order[idx].Stats.Observe(r.Value)
	}

	return result
}

// Groups returns the block's accumulators in first-touched order.
func (b *BlockResult) Groups() []GroupAccumulator {
	return b.order
}

// GlobalState is the single long-lived accumulator of a run: a mapping from
// canonical GroupKey to sufficient statistics, plus the metric normalizer
// that defines the canonical label space. It is created empty, mutated once
// per block (or per partial state) by merging, and frozen before
// finalization.
type GlobalState struct {
	criteria Criteria
	norm     *MetricNormalizer

	// canonicalTarget is the canonical form of criteria.Metric, tracked
	// through renames. Empty when no metric criterion is set.
	canonicalTarget string

	groups map[GroupKey]int
	order  []GroupAccumulator

	// RowsRead, RowsFiltered, and RowsInvalid accumulate the block-level
	// exclusion counters across all merged blocks.
	RowsRead     uint64
	RowsFiltered uint64
	RowsInvalid  uint64
}

// NewGlobalState creates an empty global state for the given criteria. A
// metric criterion is registered with the normalizer up front so that prefix
// discovery treats the filter target like any other label, independent of
// arrival order.
func NewGlobalState(criteria Criteria) *GlobalState {
	g := &GlobalState{
		criteria: criteria,
		norm:     NewMetricNormalizer(),
		groups:   make(map[GroupKey]int),
	}

	if criteria.Metric != "" {
		g.canonicalTarget, _ = g.norm.Canonicalize(criteria.Metric)
	}

	return g
}

// Criteria returns the filter criteria the state was created with.
func (g *GlobalState) Criteria() Criteria {
	return g.criteria
}

// Normalizer exposes the state's metric normalizer. The second pass reuses
// it frozen, so that pass-two labels resolve exactly as pass one did.
func (g *GlobalState) Normalizer() *MetricNormalizer {
	return g.norm
}

// CanonicalTarget returns the canonical form of the metric criterion, or ""
// when no metric criterion is set.
func (g *GlobalState) CanonicalTarget() string {
	return g.canonicalTarget
}

// GroupCount returns the number of groups accumulated so far.
func (g *GlobalState) GroupCount() int {
	return len(g.order)
}

// AggregateBlock folds one block of readings into the state. Equivalent to
// MergeBlock(FoldBlock(block, criteria)).
func (g *GlobalState) AggregateBlock(block Block) {
	g.MergeBlock(FoldBlock(block, g.criteria))
}

// MergeBlock merges a block result into the global state: each raw metric
// label is canonicalized (possibly re-keying existing groups when a shorter
// prefix is discovered), the metric criterion is applied in canonical space,
// and surviving accumulators are folded in additively.
func (g *GlobalState) MergeBlock(result *BlockResult) {
	g.RowsRead += result.RowsRead
	g.RowsFiltered += result.RowsFiltered
	g.RowsInvalid += result.RowsInvalid

	for _, acc := range result.Groups() {
		canonical := g.canonicalizeAndRekey(acc.Key.Metric)

		if !g.criteria.MatchesMetric(canonical, g.canonicalTarget) {
			g.RowsFiltered += acc.Stats.Count

			continue
		}

		key := GroupKey{Site: acc.Key.Site, Device: acc.Key.Device, Metric: canonical}
		g.mergeGroup(key, acc.Stats)
	}
}

// Merge folds another global state into g. Both states must have been built
// with the same criteria. Groups arriving from other are re-canonicalized
// against g's label space, so independently computed partial states may be
// merged in any order. Counters are summed; groups absent from one side
// simply contribute nothing (never NaN).
func (g *GlobalState) Merge(other *GlobalState) {
	g.RowsRead += other.RowsRead
	g.RowsFiltered += other.RowsFiltered
	g.RowsInvalid += other.RowsInvalid

	for _, acc := range other.order {
		canonical := g.canonicalizeAndRekey(acc.Key.Metric)

		if !g.criteria.MatchesMetric(canonical, g.canonicalTarget) {
			g.RowsFiltered += acc.Stats.Count

			continue
		}

		key := GroupKey{Site: acc.Key.Site, Device: acc.Key.Device, Metric: canonical}
		g.mergeGroup(key, acc.Stats)
	}
}

// canonicalizeAndRekey canonicalizes one raw metric label and, when the
// discovery renames previously canonical labels, re-keys every affected
// group using the same additive merge as block merging.
func (g *GlobalState) canonicalizeAndRekey(raw string) string {
	canonical, renames := g.norm.Canonicalize(raw)
	if len(renames) == 0 {
		return canonical
	}

	if target, ok := renames[g.canonicalTarget]; ok {
		g.canonicalTarget = target
	}

	g.applyRenames(renames)

	return canonical
}

// applyRenames rewrites group keys whose metric label was renamed. The
// re-keyed group keeps the earliest insertion position of its family, and
// statistics merge with the standard additive formulas, never a
// recomputation from raw rows.
func (g *GlobalState) applyRenames(renames map[string]string) {
	rebuilt := make(map[GroupKey]int, len(g.groups))
	order := g.order[:0]

	for _, acc := range g.order {
		key := acc.Key
		if canonical, renamed := renames[key.Metric]; renamed {
			key.Metric = canonical
		}

		if idx, ok := rebuilt[key]; ok {
			order[idx].Merge(GroupAccumulator{Key: key, Stats: acc.Stats})

			continue
		}

		rebuilt[key] = len(order)
		order = append(order, GroupAccumulator{Key: key, Stats: acc.Stats})
	}

	g.groups = rebuilt
	g.order = order
}

// mergeGroup folds src into the accumulator for key, creating the group on
// its first contributing row.
func (g *GlobalState) mergeGroup(key GroupKey, src stats.Sufficient) {
	if src.Count == 0 {
		return
	}

	idx, ok := g.groups[key]
	if !ok {
		idx = len(g.order)
		g.groups[key] = idx
		g.order = append(g.order, GroupAccumulator{Key: key})
	}

	g.order[idx].Merge(GroupAccumulator{Key: key, Stats: src})
}

// GroupStats is the finalized, reportable view of one group.
type GroupStats struct {
	Key GroupKey
	stats.Finalized
}

// Finalize converts the accumulated state into reportable per-group
// statistics, in group insertion order. Groups only exist once they have a
// contributing row, so every finalized group has count >= 1.
func (g *GlobalState) Finalize() []GroupStats {
	out := make([]GroupStats, 0, len(g.order))

	for _, acc := range g.order {
		out = append(out, GroupStats{Key: acc.Key, Finalized: acc.Stats.Finalize()})
	}

	return out
}

// Export returns the state's accumulators in insertion order, for
// snapshotting between passes.
func (g *GlobalState) Export() []GroupAccumulator {
	out := make([]GroupAccumulator, len(g.order))
	copy(out, g.order)

	return out
}

// Restore replaces the state's groups, normalizer label space, canonical
// filter target, and counters with a previously exported snapshot. Keys must
// already be canonical.
func (g *GlobalState) Restore(groups []GroupAccumulator, canonicalTarget string, rowsRead, rowsFiltered, rowsInvalid uint64) {
	g.groups = make(map[GroupKey]int, len(groups))
	g.order = make([]GroupAccumulator, 0, len(groups))
	g.canonicalTarget = canonicalTarget

	labels := make([]string, 0, len(groups))
	seen := make(map[string]bool, len(groups))

	if g.canonicalTarget != "" {
		labels = append(labels, g.canonicalTarget)
		seen[g.canonicalTarget] = true
	}

	for _, acc := range groups {
		g.groups[acc.Key] = len(g.order)
		g.order = append(g.order, acc)

		if !seen[acc.Key.Metric] {
			labels = append(labels, acc.Key.Metric)
			seen[acc.Key.Metric] = true
		}
	}

	g.norm.Restore(labels)
	g.RowsRead = rowsRead
	g.RowsFiltered = rowsFiltered
	g.RowsInvalid = rowsInvalid
}
