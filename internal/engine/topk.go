package engine

import "slices"

// TopK is the number of groups reported in each ranking table.
const TopK = 10

// TopKByMean returns up to k groups sorted descending by mean. Equal means
// order by group key text, so ranking is reproducible across runs.
func TopKByMean(groups []GroupStats, k int) []GroupStats {
	return topK(groups, k, func(g GroupStats) float64 { return g.Mean })
}

// TopKByStd returns up to k groups sorted descending by standard deviation,
// with the same deterministic tie-break as TopKByMean.
func TopKByStd(groups []GroupStats, k int) []GroupStats {
	return topK(groups, k, func(g GroupStats) float64 { return g.Std })
}

func topK(groups []GroupStats, k int, value func(GroupStats) float64) []GroupStats {
	sorted := make([]GroupStats, len(groups))
	copy(sorted, groups)

	slices.SortStableFunc(sorted, func(a, b GroupStats) int {
		va, vb := value(a), value(b)

		switch {
		case va > vb:
			return -1
		case va < vb:
			return 1
		default:
			return a.Key.Compare(b.Key)
		}
	})

	if k < len(sorted) {
		sorted = sorted[:k]
	}

	return sorted
}
