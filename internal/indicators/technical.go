package indicators

import (
	"fmt"
	"math"
)

// SMA is the n-period simple moving average; the first n-1 entries are nil
func SMA(values []float64, n int) []*float64 {
	out := make([]*float64, len(values))
	if n <= 0 || len(values) < n {
		return out
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i >= n-1 {
			avg := sum / float64(n)
			out[i] = &avg
		}
	}
	return out
}

// EMA uses smoothing 2/(n+1), seeded with the SMA of the first n values
func EMA(values []float64, n int) []*float64 {
	out := make([]*float64, len(values))
	if n <= 0 || len(values) < n {
		return out
	}

	k := 2.0 / float64(n+1)
	prev := Mean(values[:n])
	seed := prev
	out[n-1] = &seed

	for i := n; i < len(values); i++ {
		next := values[i]*k + prev*(1-k)
		out[i] = &next
		prev = next
	}
	return out
}

// DefaultRSIPeriod is the classic 14-day RSI
const DefaultRSIPeriod = 14

// RSI uses Wilder smoothing; the first period entries are nil
func RSI(closes []float64, period int) []*float64 {
	out := make([]*float64, len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		up, down := 0.0, 0.0
		if change > 0 {
			up = change
		} else {
			down = -change
		}
		avgGain = (avgGain*float64(period-1) + up) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + down) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) *float64 {
	var v float64
	switch {
	case avgLoss == 0 && avgGain == 0:
		v = 50
	case avgLoss == 0:
		v = 100
	default:
		v = 100 - 100/(1+avgGain/avgLoss)
	}
	return &v
}

// Last returns the final non-nil entry of an indicator series
func Last(series []*float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] != nil {
			return *series[i], true
		}
	}
	return 0, false
}

// LinearRegression fits y = m·x + b with x = 0..n-1
func LinearRegression(values []float64) (m, b float64, err error) {
	n := float64(len(values))
	if len(values) < 2 {
		return 0, 0, ErrInsufficientData
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0, ErrDegenerate
	}
	m = (n*sumXY - sumX*sumY) / denom
	b = (sumY - m*sumX) / n
	return m, b, nil
}

// Correlation is the Pearson coefficient of two equal-length series
func Correlation(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("correlation: %d vs %d values", len(a), len(b))
	}
	if len(a) < 3 {
		return 0, ErrInsufficientData
	}

	sa, sb := StdDev(a), StdDev(b)
	if sa == 0 || sb == 0 {
		return 0, ErrDegenerate
	}
	r := Covariance(a, b) / (sa * sb)
	return math.Max(-1, math.Min(1, r)), nil
}

// CorrelationMatrix correlates every pair of series; undefined pairs are nil.
// The diagonal is 1 for any series with variance.
func CorrelationMatrix(series [][]float64) [][]*float64 {
	n := len(series)
	out := make([][]*float64, n)
	for i := range out {
		out[i] = make([]*float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := Ptr(Correlation(series[i], series[j]))
			out[i][j] = c
			out[j][i] = c
		}
	}
	return out
}
