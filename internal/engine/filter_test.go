package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}

	return t
}

func TestCriteria_Validate(t *testing.T) {
	t.Parallel()

	t.Run("start_after_end_rejected", func(t *testing.T) {
		t.Parallel()

		c := Criteria{TimeStart: ts("2024-05-02T00:00:00Z"), TimeEnd: ts("2024-05-01T00:00:00Z")}

		err := c.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidTimeRange)
	})

	t.Run("equal_bounds_allowed", func(t *testing.T) {
		t.Parallel()

		c := Criteria{TimeStart: ts("2024-05-01T00:00:00Z"), TimeEnd: ts("2024-05-01T00:00:00Z")}
		assert.NoError(t, c.Validate())
	})

	t.Run("open_bounds_allowed", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, Criteria{}.Validate())
	})
}

func TestCriteria_MatchesRow(t *testing.T) {
	t.Parallel()

	reading := Reading{
		Site:      "plant-a",
		Device:    "sensor-1",
		Metric:    "temp",
		Timestamp: ts("2024-05-01T12:00:00Z"),
		Value:     21.5,
		Valid:     true,
	}

	tests := []struct {
		name     string
		criteria Criteria
		expected bool
	}{
		{name: "no_constraints", criteria: Criteria{}, expected: true},
		{name: "site_match", criteria: Criteria{Site: "plant-a"}, expected: true},
		{name: "site_mismatch", criteria: Criteria{Site: "plant-b"}, expected: false},
		{name: "device_match", criteria: Criteria{Device: "sensor-1"}, expected: true},
		{name: "device_mismatch", criteria: Criteria{Device: "sensor-9"}, expected: false},
		{
			name:     "inside_time_window",
			criteria: Criteria{TimeStart: ts("2024-05-01T00:00:00Z"), TimeEnd: ts("2024-05-02T00:00:00Z")},
			expected: true,
		},
		{
			name:     "at_inclusive_start",
			criteria: Criteria{TimeStart: ts("2024-05-01T12:00:00Z")},
			expected: true,
		},
		{
			name:     "at_inclusive_end",
			criteria: Criteria{TimeEnd: ts("2024-05-01T12:00:00Z")},
			expected: true,
		},
		{
			name:     "before_start",
			criteria: Criteria{TimeStart: ts("2024-05-01T12:00:01Z")},
			expected: false,
		},
		{
			name:     "after_end",
			criteria: Criteria{TimeEnd: ts("2024-05-01T11:59:59Z")},
			expected: false,
		},
		{
			name:     "conjunction_one_fails",
			criteria: Criteria{Site: "plant-a", Device: "sensor-9"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, tt.criteria.MatchesRow(reading))
		})
	}
}

func TestCriteria_MatchesMetric(t *testing.T) {
	t.Parallel()

	assert.True(t, Criteria{}.MatchesMetric("temp", ""))
	assert.True(t, Criteria{Metric: "temperature"}.MatchesMetric("temp", "temp"))
	assert.False(t, Criteria{Metric: "humidity"}.MatchesMetric("temp", "humidity"))
}
