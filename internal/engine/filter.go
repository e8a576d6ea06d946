package engine

import (
	"errors"
	"time"
)

// ErrInvalidTimeRange indicates contradictory filter bounds
// (time_start after time_end). Surfaced before any block is processed.
var ErrInvalidTimeRange = errors.New("filter: time_start must not be after time_end")

// Criteria holds the conjunctive row filter. Empty string fields and zero
// time fields are unconstrained. All supplied constraints must hold for a
// row to be included.
type Criteria struct {
	Site   string
	Device string

	// Metric is matched in canonical space: the canonical form of a row's
	// metric label must equal the canonical form of this value.
	Metric string

	// TimeStart and TimeEnd are inclusive bounds. A zero value means
	// unbounded on that side.
	TimeStart time.Time
	TimeEnd   time.Time
}

// Validate rejects contradictory bounds. Configuration errors are fatal to
// the run and must surface before processing starts.
func (c Criteria) Validate() error {
	if !c.TimeStart.IsZero() && !c.TimeEnd.IsZero() && c.TimeStart.After(c.TimeEnd) {
		return ErrInvalidTimeRange
	}

	return nil
}

// MatchesRow checks the site, device, and timestamp constraints against a
// reading. The metric constraint is checked separately in canonical space
// via MatchesMetric, after the label has been canonicalized.
func (c Criteria) MatchesRow(r Reading) bool {
	if c.Site != "" && r.Site != c.Site {
		return false
	}

	if c.Device != "" && r.Device != c.Device {
		return false
	}

	if !c.TimeStart.IsZero() && r.Timestamp.Before(c.TimeStart) {
		return false
	}

	if !c.TimeEnd.IsZero() && r.Timestamp.After(c.TimeEnd) {
		return false
	}

	return true
}

// MatchesMetric checks the metric constraint given the canonical forms of
// the row's metric label and of the filter target.
func (c Criteria) MatchesMetric(canonicalMetric, canonicalTarget string) bool {
	if c.Metric == "" {
		return true
	}

	return canonicalMetric == canonicalTarget
}
