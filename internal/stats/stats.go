// Package stats provides the descriptive statistics used by the summary
// table and the map scale.
package stats

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Mean returns the arithmetic mean, or NaN for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	n := float64(len(values))
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	if !math.IsInf(sum, 0) {
		return sum / n
	}
	// The running sum overflowed; scale each term first.
	mean := 0.0
	for _, v := range values {
		mean += v / n
	}
	return mean
}

// Median returns the middle value, averaging the two middle values for even
// lengths. NaN for an empty slice.
func Median(values []float64) float64 {
	return Percentile(values, 50)
}

// Min returns the smallest value, or NaN for an empty slice.
func Min(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Max returns the largest value, or NaN for an empty slice.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Percentile returns the p-th percentile (0..100) using linear interpolation
// between closest ranks: rank = p/100 * (n-1). The input is not modified.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

// Percentiles computes several percentiles with a single sort.
func Percentiles(values []float64, ps ...float64) []float64 {
	out := make([]float64, len(ps))
	if len(values) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	for i, p := range ps {
		out[i] = percentileSorted(sorted, p)
	}
	return out
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lower := int(math.Floor(rank))
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	// Weighted form; the difference of opposite-signed extremes overflows.
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// Clip limits v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round2 rounds to two decimals the way numpy.round does: the binary value is
// scaled by 100 and rounded half to even, so 2.675 (stored as 2.67499...)
// gives 2.67. NaN and infinities pass through.
func Round2(v float64) float64 {
	scaled := v * 100
	if math.IsNaN(v) || math.IsInf(scaled, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(scaled).RoundBank(0).Shift(-2).Float64()
	return f
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
