package risk

import (
	"errors"

	"github.com/wonny/folio/backend/internal/contracts"
)

// ErrNoWeight means no position carried a positive market value
var ErrNoWeight = errors.New("portfolio has no market value")

// WeightedPosition is one assessed holding
type WeightedPosition struct {
	MarketValue float64
	Assessment  contracts.RiskAssessment
}

// AssessPortfolio weights each position's metrics by market value.
// Optional metrics (beta, Sharpe, VaR, ES) are carried only when a majority
// of positions contribute them, renormalized over the contributors.
func AssessPortfolio(positions []WeightedPosition, weights ScoreWeights) (contracts.RiskAssessment, float64, error) {
	var total float64
	var live []WeightedPosition
	for _, p := range positions {
		if p.MarketValue > 0 {
			total += p.MarketValue
			live = append(live, p)
		}
	}
	if total == 0 {
		return contracts.RiskAssessment{}, 0, ErrNoWeight
	}

	var out contracts.RiskAssessment
	for _, p := range live {
		w := p.MarketValue / total
		out.Volatility += w * p.Assessment.Volatility
		out.MaxDrawdown += w * p.Assessment.MaxDrawdown
		out.Points += p.Assessment.Points
	}

	pick := func(get func(contracts.RiskAssessment) *float64) *float64 {
		return weightedMajority(live, total, get)
	}
	out.Beta = pick(func(a contracts.RiskAssessment) *float64 { return a.Beta })
	out.Sharpe = pick(func(a contracts.RiskAssessment) *float64 { return a.Sharpe })
	out.Sortino = pick(func(a contracts.RiskAssessment) *float64 { return a.Sortino })
	out.VaR95 = pick(func(a contracts.RiskAssessment) *float64 { return a.VaR95 })
	out.VaR99 = pick(func(a contracts.RiskAssessment) *float64 { return a.VaR99 })
	out.ES95 = pick(func(a contracts.RiskAssessment) *float64 { return a.ES95 })
	out.ES99 = pick(func(a contracts.RiskAssessment) *float64 { return a.ES99 })

	if weights == (ScoreWeights{}) {
		weights = DefaultScoreWeights()
	}
	out.RiskScore = weights.Score(&out.Volatility, &out.MaxDrawdown, out.Beta, out.Sharpe)
	out.Level = contracts.LevelFromScore(out.RiskScore)
	return out, total, nil
}

func weightedMajority(live []WeightedPosition, total float64, get func(contracts.RiskAssessment) *float64) *float64 {
	var sum, weight float64
	count := 0
	for _, p := range live {
		v := get(p.Assessment)
		if v == nil {
			continue
		}
		w := p.MarketValue / total
		sum += w * *v
		weight += w
		count++
	}
	if count*2 <= len(live) || weight == 0 {
		return nil
	}
	v := sum / weight
	return &v
}
