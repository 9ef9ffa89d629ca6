package risk

import "math"

// ScoreWeights are the composite weights over the four scored metrics.
// They are a tuning parameter; missing metrics drop out and the rest renormalize.
type ScoreWeights struct {
	Volatility float64 `json:"volatility"`
	Drawdown   float64 `json:"drawdown"`
	Beta       float64 `json:"beta"`
	Sharpe     float64 `json:"sharpe"`
}

// DefaultScoreWeights favour realized volatility and drawdown
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Volatility: 0.35, Drawdown: 0.25, Beta: 0.20, Sharpe: 0.20}
}

// Saturation points of each contribution (the metric value that scores 100)
const (
	volatilityCeiling = 60.0 // annualized percent
	drawdownCeiling   = 50.0 // percent magnitude
	betaCeiling       = 2.0
	sharpeBest        = 2.0  // scores 0
	sharpeWorst       = -1.0 // scores 100
)

// VolatilityContribution maps annualized volatility into [0,100]; higher is riskier
func VolatilityContribution(vol float64) float64 {
	return clamp(vol / volatilityCeiling * 100)
}

// DrawdownContribution grows with drawdown magnitude
func DrawdownContribution(dd float64) float64 {
	return clamp(math.Abs(dd) / drawdownCeiling * 100)
}

// BetaContribution grows with |beta|
func BetaContribution(beta float64) float64 {
	return clamp(math.Abs(beta) / betaCeiling * 100)
}

// SharpeContribution shrinks as Sharpe improves
func SharpeContribution(sharpe float64) float64 {
	return clamp((sharpeBest - sharpe) / (sharpeBest - sharpeWorst) * 100)
}

// Score combines the present metrics into a [0,100] composite.
// With no metrics at all the score is 0.
func (w ScoreWeights) Score(vol, dd, beta, sharpe *float64) float64 {
	var total, weight float64

	add := func(v *float64, wt float64, f func(float64) float64) {
		if v == nil || wt <= 0 {
			return
		}
		total += wt * f(*v)
		weight += wt
	}
	add(vol, w.Volatility, VolatilityContribution)
	add(dd, w.Drawdown, DrawdownContribution)
	add(beta, w.Beta, BetaContribution)
	add(sharpe, w.Sharpe, SharpeContribution)

	if weight == 0 {
		return 0
	}
	return clamp(total / weight)
}

func clamp(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(100, x))
}
