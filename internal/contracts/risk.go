package contracts

import (
	"errors"
	"fmt"
	"time"
)

// RiskLevel buckets a risk score
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// LevelFromScore maps a [0,100] score onto Low (<40), Moderate (<70) or High
func LevelFromScore(score float64) RiskLevel {
	switch {
	case score < 40:
		return RiskLow
	case score < 70:
		return RiskModerate
	default:
		return RiskHigh
	}
}

// RiskAssessment is the per-ticker (or weighted portfolio) metric bundle.
// Optional metrics are nil when the input series could not support them.
type RiskAssessment struct {
	Ticker      string    `json:"ticker"`
	Benchmark   string    `json:"benchmark"`
	Volatility  float64   `json:"volatility"`   // annualized, percent
	MaxDrawdown float64   `json:"max_drawdown"` // percent, <= 0
	Beta        *float64  `json:"beta,omitempty"`
	Sharpe      *float64  `json:"sharpe,omitempty"`
	Sortino     *float64  `json:"sortino,omitempty"`
	VaR95       *float64  `json:"var_95,omitempty"`
	VaR99       *float64  `json:"var_99,omitempty"`
	ES95        *float64  `json:"es_95,omitempty"`
	ES99        *float64  `json:"es_99,omitempty"`
	RiskScore   float64   `json:"risk_score"`
	Level       RiskLevel `json:"risk_level"`
	Points      int       `json:"points"`
	AsOf        time.Time `json:"as_of"`
}

// SnapshotType distinguishes position rows from the portfolio aggregate
type SnapshotType string

const (
	SnapshotPortfolio SnapshotType = "portfolio"
	SnapshotPosition  SnapshotType = "position"
)

// RiskSnapshot is a persisted assessment, unique by (portfolio, ticker, date, type).
// Ticker is empty for portfolio-level rows.
type RiskSnapshot struct {
	ID           int64        `json:"id,omitempty"`
	PortfolioID  string       `json:"portfolio_id"`
	Ticker       string       `json:"ticker,omitempty"`
	SnapshotDate time.Time    `json:"snapshot_date"`
	Type         SnapshotType `json:"snapshot_type"`
	Volatility   float64      `json:"volatility"`
	MaxDrawdown  float64      `json:"max_drawdown"`
	Beta         *float64     `json:"beta,omitempty"`
	Sharpe       *float64     `json:"sharpe,omitempty"`
	VaR95        *float64     `json:"var_95,omitempty"`
	VaR99        *float64     `json:"var_99,omitempty"`
	ES95         *float64     `json:"es_95,omitempty"`
	ES99         *float64     `json:"es_99,omitempty"`
	RiskScore    float64      `json:"risk_score"`
	Level        RiskLevel    `json:"risk_level"`
	MarketValue  *float64     `json:"market_value,omitempty"`
	TotalValue   *float64     `json:"total_value,omitempty"`
}

// SnapshotFromAssessment copies the metric bundle into a snapshot row
func SnapshotFromAssessment(portfolioID string, date time.Time, typ SnapshotType, a RiskAssessment) RiskSnapshot {
	s := RiskSnapshot{
		PortfolioID:  portfolioID,
		SnapshotDate: DateOnly(date),
		Type:         typ,
		Volatility:   a.Volatility,
		MaxDrawdown:  a.MaxDrawdown,
		Beta:         a.Beta,
		Sharpe:       a.Sharpe,
		VaR95:        a.VaR95,
		VaR99:        a.VaR99,
		ES95:         a.ES95,
		ES99:         a.ES99,
		RiskScore:    a.RiskScore,
		Level:        a.Level,
	}
	if typ == SnapshotPosition {
		s.Ticker = a.Ticker
	}
	return s
}

// RiskThresholdSettings are per-portfolio base alert bands, before regime scaling
type RiskThresholdSettings struct {
	PortfolioID        string  `json:"portfolio_id"`
	VolatilityWarning  float64 `json:"volatility_warning"`
	VolatilityCritical float64 `json:"volatility_critical"`
	DrawdownWarning    float64 `json:"drawdown_warning"` // percent magnitude
	DrawdownCritical   float64 `json:"drawdown_critical"`
	BetaWarning        float64 `json:"beta_warning"`
	BetaCritical       float64 `json:"beta_critical"`
	RiskScoreWarning   float64 `json:"risk_score_warning"`
	RiskScoreCritical  float64 `json:"risk_score_critical"`
	VaRWarning         float64 `json:"var_warning"` // percent magnitude
	VaRCritical        float64 `json:"var_critical"`
}

// ErrInvalidThresholds rejects bands that are not positive or not ordered
var ErrInvalidThresholds = errors.New("invalid risk thresholds")

// Validate checks every band is positive with warning below critical
func (t RiskThresholdSettings) Validate() error {
	pairs := []struct {
		name              string
		warning, critical float64
	}{
		{"volatility", t.VolatilityWarning, t.VolatilityCritical},
		{"drawdown", t.DrawdownWarning, t.DrawdownCritical},
		{"beta", t.BetaWarning, t.BetaCritical},
		{"risk_score", t.RiskScoreWarning, t.RiskScoreCritical},
		{"var", t.VaRWarning, t.VaRCritical},
	}
	for _, p := range pairs {
		if p.warning <= 0 || p.critical <= p.warning {
			return fmt.Errorf("%w: %s warning %.2f, critical %.2f", ErrInvalidThresholds, p.name, p.warning, p.critical)
		}
	}
	return nil
}

// DefaultRiskThresholds are materialized the first time a portfolio is read
func DefaultRiskThresholds(portfolioID string) RiskThresholdSettings {
	return RiskThresholdSettings{
		PortfolioID:        portfolioID,
		VolatilityWarning:  30,
		VolatilityCritical: 50,
		DrawdownWarning:    20,
		DrawdownCritical:   35,
		BetaWarning:        1.5,
		BetaCritical:       2.0,
		RiskScoreWarning:   60,
		RiskScoreCritical:  80,
		VaRWarning:         3,
		VaRCritical:        5,
	}
}
