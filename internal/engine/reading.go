// Package engine implements the streaming aggregation core: per-block row
// filtering, prefix canonicalization of metric labels, numerically-safe
// folding into per-group sufficient statistics, merging of block results
// into a single global state, top-k ranking, and two-pass outlier
// classification. The engine never holds more than one block of raw rows
// plus the group-bounded global state in memory.
package engine

import (
	"math"
	"time"
)

// Reading is one input row of the sensor table.
type Reading struct {
	Site      string
	Device    string
	Metric    string
	Timestamp time.Time
	Value     float64

	// Valid is false when the source could not parse the value (or the
	// timestamp). Invalid readings never contribute to any statistic.
	Valid bool
}

// HasValue reports whether the reading carries a usable numeric value.
// Readings with a missing or unparseable value, including NaN, are excluded
// from all statistics.
func (r Reading) HasValue() bool {
	return r.Valid && !math.IsNaN(r.Value)
}

// Block is a bounded, ordered batch of readings; the unit of memory-bounded
// processing.
type Block struct {
	// Readings in this block, in input order.
	Readings []Reading

	// Index is the zero-based position of the block in the stream.
	Index int

	// StartRow is the zero-based data row offset of the first reading.
	StartRow uint64
}

// GroupKey is the (site, device, canonical metric) tuple that statistics are
// aggregated per.
type GroupKey struct {
	Site   string
	Device string
	Metric string
}

// String returns the key in "site/device/metric" form, the textual order
// used for deterministic tie-breaking.
func (k GroupKey) String() string {
	return k.Site + "/" + k.Device + "/" + k.Metric
}

// Compare orders keys by site, then device, then metric.
func (k GroupKey) Compare(o GroupKey) int {
	if k.Site != o.Site {
		return compareStrings(k.Site, o.Site)
	}

	if k.Device != o.Device {
		return compareStrings(k.Device, o.Device)
	}

	return compareStrings(k.Metric, o.Metric)
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
