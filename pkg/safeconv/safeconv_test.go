package safeconv_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/sensorstats/pkg/safeconv"
)

func TestMustUint64ToInt64(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(0), safeconv.MustUint64ToInt64(0))
	assert.Equal(t, int64(math.MaxInt64), safeconv.MustUint64ToInt64(math.MaxInt64))

	assert.Panics(t, func() {
		safeconv.MustUint64ToInt64(math.MaxInt64 + 1)
	})
}

func TestMustIntToUint64(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(42), safeconv.MustIntToUint64(42))
	assert.Equal(t, uint64(0), safeconv.MustIntToUint64(0))

	assert.Panics(t, func() {
		safeconv.MustIntToUint64(-1)
	})
}

func TestMustUint64ToInt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 7, safeconv.MustUint64ToInt(7))

	assert.Panics(t, func() {
		safeconv.MustUint64ToInt(math.MaxUint64)
	})
}
