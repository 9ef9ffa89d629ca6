package indicators

import (
	"fmt"
	"math"
)

// MinBetaPoints is the minimum overlap of asset and benchmark returns for beta
const MinBetaPoints = 20

// Volatility is std(returns) × √252 × 100
func Volatility(returns []float64) (float64, error) {
	if len(returns) < 2 {
		return 0, fmt.Errorf("volatility needs 2 returns, got %d: %w", len(returns), ErrInsufficientData)
	}
	return StdDev(returns) * math.Sqrt(TradingDays) * 100, nil
}

// MaxDrawdown is min over i of (p[i]/runningPeak - 1) × 100; always <= 0
func MaxDrawdown(closes []float64) (float64, error) {
	if len(closes) < 2 {
		return 0, fmt.Errorf("drawdown needs 2 closes, got %d: %w", len(closes), ErrInsufficientData)
	}

	peak := closes[0]
	worst := 0.0
	for _, p := range closes {
		if p > peak {
			peak = p
		}
		if peak <= 0 {
			return 0, fmt.Errorf("non-positive peak: %w", ErrDegenerate)
		}
		if dd := (p/peak - 1) * 100; dd < worst {
			worst = dd
		}
	}
	return worst, nil
}

// Beta is cov(asset, bench) / var(bench) on date-aligned returns
func Beta(asset, bench []float64) (float64, error) {
	if len(asset) != len(bench) {
		return 0, fmt.Errorf("beta: %d asset vs %d benchmark returns", len(asset), len(bench))
	}
	if len(asset) < MinBetaPoints {
		return 0, fmt.Errorf("beta needs %d points, got %d: %w", MinBetaPoints, len(asset), ErrInsufficientData)
	}

	variance := Covariance(bench, bench)
	if variance == 0 || !finite(variance) {
		return 0, fmt.Errorf("zero benchmark variance: %w", ErrDegenerate)
	}
	return Covariance(asset, bench) / variance, nil
}

// Sharpe is (mean × 252 − rf) / (std × √252); rf is an annual fraction
func Sharpe(returns []float64, riskFree float64) (float64, error) {
	if len(returns) < 2 {
		return 0, ErrInsufficientData
	}
	sd := StdDev(returns)
	if sd == 0 {
		return 0, fmt.Errorf("zero volatility: %w", ErrDegenerate)
	}
	return (Mean(returns)*TradingDays - riskFree) / (sd * math.Sqrt(TradingDays)), nil
}

// DownsideDeviation is sqrt(mean(min(r, 0)²)), daily
func DownsideDeviation(returns []float64) (float64, error) {
	if len(returns) < 2 {
		return 0, ErrInsufficientData
	}
	var sum float64
	for _, r := range returns {
		if r < 0 {
			sum += r * r
		}
	}
	return math.Sqrt(sum / float64(len(returns))), nil
}

// Sortino shares Sharpe's numerator with a downside-only denominator
func Sortino(returns []float64, riskFree float64) (float64, error) {
	dd, err := DownsideDeviation(returns)
	if err != nil {
		return 0, err
	}
	if dd == 0 {
		return 0, fmt.Errorf("no downside returns: %w", ErrDegenerate)
	}
	return (Mean(returns)*TradingDays - riskFree) / (dd * math.Sqrt(TradingDays)), nil
}

// MinTailPoints is the shortest series VaR/ES will estimate from
const MinTailPoints = 20

// VaR is the empirical (1-confidence) quantile of daily returns, in percent.
// A loss is negative: VaR(0.95) = -2.1 means a 5% chance of losing 2.1% or more in a day.
func VaR(returns []float64, confidence float64) (float64, error) {
	idx, sorted, err := tailIndex(returns, confidence)
	if err != nil {
		return 0, err
	}
	return sorted[idx] * 100, nil
}

// ExpectedShortfall is the mean of returns at or below the VaR threshold, in percent
func ExpectedShortfall(returns []float64, confidence float64) (float64, error) {
	idx, sorted, err := tailIndex(returns, confidence)
	if err != nil {
		return 0, err
	}
	return Mean(sorted[:idx+1]) * 100, nil
}

func tailIndex(returns []float64, confidence float64) (int, []float64, error) {
	if confidence <= 0 || confidence >= 1 {
		return 0, nil, fmt.Errorf("confidence %v outside (0,1)", confidence)
	}
	if len(returns) < MinTailPoints {
		return 0, nil, fmt.Errorf("tail estimate needs %d returns, got %d: %w", MinTailPoints, len(returns), ErrInsufficientData)
	}

	sorted := Sorted(returns)
	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return idx, sorted, nil
}
