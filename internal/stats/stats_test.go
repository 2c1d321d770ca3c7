package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanMedianMinMax(t *testing.T) {
	values := []float64{30, 10, 10}

	assert.InDelta(t, 50.0/3.0, Mean(values), 1e-12)
	assert.Equal(t, 10.0, Median(values))
	assert.Equal(t, 10.0, Min(values))
	assert.Equal(t, 30.0, Max(values))
	assert.Equal(t, []float64{30, 10, 10}, values, "input must not be reordered")
}

func TestMedian_EvenLength(t *testing.T) {
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
}

func TestSingleValue(t *testing.T) {
	v := []float64{-7.25}
	assert.Equal(t, -7.25, Mean(v))
	assert.Equal(t, -7.25, Median(v))
	assert.Equal(t, -7.25, Min(v))
	assert.Equal(t, -7.25, Max(v))
	assert.Equal(t, -7.25, Percentile(v, 5))
	assert.Equal(t, -7.25, Percentile(v, 95))
}

func TestEmpty(t *testing.T) {
	assert.True(t, math.IsNaN(Mean(nil)))
	assert.True(t, math.IsNaN(Median(nil)))
	assert.True(t, math.IsNaN(Min(nil)))
	assert.True(t, math.IsNaN(Max(nil)))
	for _, p := range Percentiles(nil, 5, 95) {
		assert.True(t, math.IsNaN(p))
	}
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	// numpy.percentile([1..10], [5, 95]) == [1.45, 9.55]
	values := []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
	got := Percentiles(values, 5, 95)
	assert.InDelta(t, 1.45, got[0], 1e-12)
	assert.InDelta(t, 9.55, got[1], 1e-12)

	assert.Equal(t, 1.0, Percentile(values, 0))
	assert.Equal(t, 10.0, Percentile(values, 100))
	assert.InDelta(t, 5.5, Percentile(values, 50), 1e-12)
}

func TestClip(t *testing.T) {
	assert.Equal(t, 1.0, Clip(0, 1, 2))
	assert.Equal(t, 2.0, Clip(3, 1, 2))
	assert.Equal(t, 1.5, Clip(1.5, 1, 2))
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{1.234, 1.23},
		{1.236, 1.24},
		{-2.345678, -2.35},
		{0.125, 0.12},
		{0.135, 0.14},
		{2.675, 2.67},
		{1.005, 1},
		{40, 40},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Round2(c.in), "Round2(%v)", c.in)
	}
	assert.True(t, math.IsNaN(Round2(math.NaN())))
	assert.True(t, math.IsInf(Round2(math.Inf(1)), 1))
}

func TestExtremeOppositeValues(t *testing.T) {
	values := []float64{1e308, -1e308}

	assert.Equal(t, 0.0, Median(values))
	assert.Equal(t, 0.0, Mean(values))
	assert.Equal(t, 0.0, Percentile(values, 50))
	for _, p := range Percentiles(values, 5, 95) {
		assert.True(t, Finite(p), "percentile %v", p)
	}
	assert.InDelta(t, 1e308, Mean([]float64{1e308, 1e308}), 1e293)
	assert.Equal(t, 1e308, Round2(1e308))
}

func TestFinite(t *testing.T) {
	assert.True(t, Finite(0))
	assert.True(t, Finite(-1e308))
	assert.False(t, Finite(math.NaN()))
	assert.False(t, Finite(math.Inf(-1)))
}
