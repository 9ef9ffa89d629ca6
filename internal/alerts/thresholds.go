package alerts

import (
	"math"

	"github.com/wonny/folio/backend/internal/contracts"
)

// Effective scales every base band by the regime multiplier.
// Thresholds are recomputed on each evaluation and never cached.
func Effective(base contracts.RiskThresholdSettings, regime contracts.RegimeType) contracts.RiskThresholdSettings {
	m := regime.Multiplier()
	return contracts.RiskThresholdSettings{
		PortfolioID:        base.PortfolioID,
		VolatilityWarning:  scale(base.VolatilityWarning, m),
		VolatilityCritical: scale(base.VolatilityCritical, m),
		DrawdownWarning:    scale(base.DrawdownWarning, m),
		DrawdownCritical:   scale(base.DrawdownCritical, m),
		BetaWarning:        scale(base.BetaWarning, m),
		BetaCritical:       scale(base.BetaCritical, m),
		RiskScoreWarning:   scale(base.RiskScoreWarning, m),
		RiskScoreCritical:  scale(base.RiskScoreCritical, m),
		VaRWarning:         scale(base.VaRWarning, m),
		VaRCritical:        scale(base.VaRCritical, m),
	}
}

// scale rounds to 1e-9 so 50 × 1.3 reads back as exactly 65
func scale(v, m float64) float64 {
	return math.Round(v*m*1e9) / 1e9
}

// band is one metric checked against a warning/critical pair
type band struct {
	metric   string
	value    float64
	warning  float64
	critical float64
}

// bands lists the snapshot metrics that carry thresholds.
// Drawdown and VaR are compared by magnitude.
func bands(s contracts.RiskSnapshot, t contracts.RiskThresholdSettings) []band {
	out := []band{
		{"volatility", s.Volatility, t.VolatilityWarning, t.VolatilityCritical},
		{"max_drawdown", math.Abs(s.MaxDrawdown), t.DrawdownWarning, t.DrawdownCritical},
		{"risk_score", s.RiskScore, t.RiskScoreWarning, t.RiskScoreCritical},
	}
	if s.Beta != nil {
		out = append(out, band{"beta", *s.Beta, t.BetaWarning, t.BetaCritical})
	}
	if s.VaR95 != nil {
		out = append(out, band{"var_95", math.Abs(*s.VaR95), t.VaRWarning, t.VaRCritical})
	}
	return out
}

// EvaluateSnapshot emits one threshold_breach alert per metric at or above its
// warning band; reaching the critical band upgrades the severity.
func EvaluateSnapshot(s contracts.RiskSnapshot, effective contracts.RiskThresholdSettings) []contracts.Alert {
	var out []contracts.Alert
	for _, b := range bands(s, effective) {
		var severity contracts.Severity
		var threshold float64
		switch {
		case b.critical > 0 && b.value >= b.critical:
			severity, threshold = contracts.SeverityCritical, b.critical
		case b.warning > 0 && b.value >= b.warning:
			severity, threshold = contracts.SeverityWarning, b.warning
		default:
			continue
		}
		th := threshold
		out = append(out, contracts.Alert{
			Kind:        contracts.AlertThresholdBreach,
			PortfolioID: s.PortfolioID,
			Ticker:      s.Ticker,
			Metric:      b.metric,
			Current:     b.value,
			Threshold:   &th,
			Severity:    severity,
			ObservedOn:  contracts.DateOnly(s.SnapshotDate),
		})
	}
	return out
}
