package engine

import "math"

// outlierStdMultiplier is the threshold width: a row is an outlier when its
// value lies strictly outside mean ± 3·std for its group.
const outlierStdMultiplier = 3.0

// Outlier is one flagged reading from the second pass.
type Outlier struct {
	Reading Reading
	Key     GroupKey

	// GroupMean and GroupStd are the frozen statistics the reading was
	// compared against.
	GroupMean float64
	GroupStd  float64
}

// OutlierClassifier flags rows whose value lies outside mean ± 3·std of
// their group. It runs as a second bounded-memory pass over the same row
// stream: the filter and the frozen normalizer are re-applied per block, and
// each surviving reading is compared against the finalized statistics. No
// raw rows are retained between blocks.
type OutlierClassifier struct {
	criteria        Criteria
	norm            *MetricNormalizer
	canonicalTarget string
	byKey           map[GroupKey]GroupStats
}

// NewOutlierClassifier builds a classifier from a frozen global state and
// its finalized statistics.
func NewOutlierClassifier(state *GlobalState, groups []GroupStats) *OutlierClassifier {
	byKey := make(map[GroupKey]GroupStats, len(groups))
	for _, g := range groups {
		byKey[g.Key] = g
	}

	return &OutlierClassifier{
		criteria:        state.Criteria(),
		norm:            state.Normalizer(),
		canonicalTarget: state.CanonicalTarget(),
		byKey:           byKey,
	}
}

// ClassifyBlock re-applies the row filter and canonicalization to one block
// and returns the readings flagged as outliers, in block order.
func (c *OutlierClassifier) ClassifyBlock(block Block) []Outlier {
	var out []Outlier

	for _, r := range block.Readings {
		if !r.HasValue() || !c.criteria.MatchesRow(r) {
			continue
		}

		canonical, ok := c.norm.Lookup(r.Metric)
		if !ok {
			continue
		}

		if !c.criteria.MatchesMetric(canonical, c.canonicalTarget) {
			continue
		}

		key := GroupKey{Site: r.Site, Device: r.Device, Metric: canonical}

		group, found := c.byKey[key]
		if !found {
			continue
		}

		if c.isOutlier(r.Value, group) {
			out = append(out, Outlier{
				Reading:   r,
				Key:       key,
				GroupMean: group.Mean,
				GroupStd:  group.Std,
			})
		}
	}

	return out
}

// isOutlier applies the strict threshold. A zero-variance group never flags:
// every row it could match has value == mean, so the comparison is vacuously
// false, and the explicit guard keeps float noise out.
func (c *OutlierClassifier) isOutlier(value float64, group GroupStats) bool {
	if group.Std == 0 {
		return false
	}

	return math.Abs(value-group.Mean) > outlierStdMultiplier*group.Std
}
