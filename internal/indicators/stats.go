// Package indicators holds pure numeric routines over daily closes (oldest first).
// Percent-valued results are in percent; returns are daily log returns.
package indicators

import (
	"errors"
	"math"
	"sort"
)

// TradingDays annualizes daily figures
const TradingDays = 252

var (
	// ErrInsufficientData means the series is shorter than the routine's lookback
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegenerate means the result would be NaN or infinite (zero variance, zero peak)
	ErrDegenerate = errors.New("degenerate input")
)

// Mean 평균
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev is the sample standard deviation
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// Covariance is the sample covariance of two equal-length series
func Covariance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	ma, mb := Mean(a), Mean(b)
	var sum float64
	for i := range a {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(len(a)-1)
}

// Percentile interpolates linearly on an ascending slice; p is in [0,100]
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	idx := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// Sorted returns an ascending copy
func Sorted(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Ptr returns &v when err is nil and v is finite, else nil
func Ptr(v float64, err error) *float64 {
	if err != nil || !finite(v) {
		return nil
	}
	return &v
}
