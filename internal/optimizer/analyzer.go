package optimizer

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/portfolio"
)

// Input is everything one analysis looks at
type Input struct {
	PortfolioID  string
	Positions    []contracts.Position
	Cash         float64
	RiskScores   map[string]float64 // latest position risk score by ticker
	Correlations *CorrelationMatrix
}

// Analyzer produces deterministic allocation findings.
// The same input always yields the same recommendations in the same order.
type Analyzer struct {
	constraints Constraints
	logger      zerolog.Logger
}

// NewAnalyzer creates an analyzer with the given limits
func NewAnalyzer(c Constraints, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		constraints: c,
		logger:      log.With().Str("component", "optimizer.analyzer").Logger(),
	}
}

// Analyze runs every rule over the portfolio
func (a *Analyzer) Analyze(in Input) contracts.OptimizationResult {
	positions := portfolio.Aggregate(in.Positions)
	weights, invested := portfolio.Weights(positions)

	res := contracts.OptimizationResult{
		PortfolioID:     in.PortfolioID,
		TotalValue:      invested + in.Cash,
		PositionCount:   len(positions),
		HHI:             HHI(weights),
		Recommendations: []contracts.Recommendation{},
		GeneratedAt:     time.Now(),
	}
	if invested == 0 {
		return res
	}

	recs := res.Recommendations
	recs = append(recs, a.concentration(res.HHI, weights)...)
	recs = append(recs, a.positionWeights(weights)...)
	recs = append(recs, a.sectorWeights(positions, invested)...)
	recs = append(recs, a.highRisk(weights, in.RiskScores)...)
	if in.Correlations != nil {
		recs = append(recs, a.clusters(*in.Correlations, weights)...)
	}
	recs = append(recs, a.cashDrag(in.Cash, res.TotalValue)...)
	res.Recommendations = recs

	a.logger.Debug().
		Str("portfolio_id", in.PortfolioID).
		Int("positions", len(positions)).
		Int("recommendations", len(recs)).
		Msg("Portfolio analyzed")

	return res
}

// HHI is the Herfindahl-Hirschman index of the weights (1 = single holding)
func HHI(weights map[string]float64) float64 {
	var h float64
	for _, w := range weights {
		h += w * w
	}
	return h
}

func (a *Analyzer) concentration(hhi float64, weights map[string]float64) []contracts.Recommendation {
	if hhi <= a.constraints.MaxHHI {
		return nil
	}
	severity := contracts.SeverityWarning
	if hhi > 2*a.constraints.MaxHHI {
		severity = contracts.SeverityCritical
	}
	return []contracts.Recommendation{{
		Type:              contracts.RecConcentration,
		Severity:          severity,
		AffectedPositions: sortedKeys(weights),
		ExpectedImpact: fmt.Sprintf("HHI %.3f exceeds %.3f; equivalent to %.1f equal positions",
			hhi, a.constraints.MaxHHI, 1/hhi),
		Metric: hhi,
	}}
}

func (a *Analyzer) positionWeights(weights map[string]float64) []contracts.Recommendation {
	var out []contracts.Recommendation
	for _, t := range sortedKeys(weights) {
		w := weights[t]
		switch {
		case w > a.constraints.MaxWeight:
			severity := contracts.SeverityWarning
			if w > 2*a.constraints.MaxWeight {
				severity = contracts.SeverityCritical
			}
			out = append(out, contracts.Recommendation{
				Type:              contracts.RecPositionOverweight,
				Severity:          severity,
				AffectedPositions: []string{t},
				ExpectedImpact:    fmt.Sprintf("reduce %s from %.1f%% to %.1f%% of invested value", t, w*100, a.constraints.MaxWeight*100),
				Metric:            w,
			})
		case w < a.constraints.MinWeight:
			out = append(out, contracts.Recommendation{
				Type:              contracts.RecPositionDust,
				Severity:          contracts.SeverityInfo,
				AffectedPositions: []string{t},
				ExpectedImpact:    fmt.Sprintf("%s is %.1f%% of invested value, below the %.1f%% minimum", t, w*100, a.constraints.MinWeight*100),
				Metric:            w,
			})
		}
	}
	return out
}

func (a *Analyzer) sectorWeights(positions []contracts.Position, invested float64) []contracts.Recommendation {
	sectors := make(map[string]float64)
	members := make(map[string][]string)
	for _, p := range positions {
		if p.Sector == "" || p.MarketValue <= 0 {
			continue
		}
		sectors[p.Sector] += p.MarketValue / invested
		members[p.Sector] = append(members[p.Sector], p.Ticker)
	}

	var out []contracts.Recommendation
	for _, s := range sortedKeys(sectors) {
		w := sectors[s]
		if w <= a.constraints.MaxSectorWeight {
			continue
		}
		severity := contracts.SeverityWarning
		if w > 2*a.constraints.MaxSectorWeight {
			severity = contracts.SeverityCritical
		}
		affected := members[s]
		sort.Strings(affected)
		out = append(out, contracts.Recommendation{
			Type:              contracts.RecSectorOverweight,
			Severity:          severity,
			AffectedPositions: affected,
			ExpectedImpact:    fmt.Sprintf("reduce %s from %.1f%% to %.1f%%", s, w*100, a.constraints.MaxSectorWeight*100),
			Metric:            w,
		})
	}
	return out
}

func (a *Analyzer) highRisk(weights map[string]float64, scores map[string]float64) []contracts.Recommendation {
	var out []contracts.Recommendation
	for _, t := range sortedKeys(weights) {
		score, ok := scores[t]
		if !ok || score < a.constraints.HighRiskScore {
			continue
		}
		severity := contracts.SeverityWarning
		if weights[t] > a.constraints.MaxWeight {
			severity = contracts.SeverityCritical
		}
		out = append(out, contracts.Recommendation{
			Type:              contracts.RecHighRiskPosition,
			Severity:          severity,
			AffectedPositions: []string{t},
			ExpectedImpact:    fmt.Sprintf("%s risk score %.0f at %.1f%% weight", t, score, weights[t]*100),
			Metric:            score,
		})
	}
	return out
}

func (a *Analyzer) clusters(m CorrelationMatrix, weights map[string]float64) []contracts.Recommendation {
	var out []contracts.Recommendation
	for _, group := range m.Clusters(a.constraints.CorrelationMax) {
		var combined float64
		for _, t := range group {
			combined += weights[t]
		}
		severity := contracts.SeverityInfo
		if combined > a.constraints.MaxSectorWeight {
			severity = contracts.SeverityWarning
		}
		out = append(out, contracts.Recommendation{
			Type:              contracts.RecCorrelationCluster,
			Severity:          severity,
			AffectedPositions: group,
			ExpectedImpact: fmt.Sprintf("%d positions move together (r >= %.2f) with %.1f%% combined weight",
				len(group), a.constraints.CorrelationMax, combined*100),
			Metric: combined,
		})
	}
	return out
}

func (a *Analyzer) cashDrag(cash, total float64) []contracts.Recommendation {
	if total <= 0 || cash <= 0 {
		return nil
	}
	w := cash / total
	if w <= a.constraints.MaxCashWeight {
		return nil
	}
	return []contracts.Recommendation{{
		Type:              contracts.RecCashDrag,
		Severity:          contracts.SeverityInfo,
		AffectedPositions: []string{},
		ExpectedImpact:    fmt.Sprintf("cash is %.1f%% of total value, above %.1f%%", w*100, a.constraints.MaxCashWeight*100),
		Metric:            w,
	}}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
