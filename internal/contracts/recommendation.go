package contracts

import "time"

// RecommendationType names the optimizer rule that fired
type RecommendationType string

const (
	RecConcentration      RecommendationType = "concentration"
	RecPositionOverweight RecommendationType = "position_overweight"
	RecPositionDust       RecommendationType = "position_dust"
	RecSectorOverweight   RecommendationType = "sector_overweight"
	RecHighRiskPosition   RecommendationType = "high_risk_position"
	RecCorrelationCluster RecommendationType = "correlation_cluster"
	RecCashDrag           RecommendationType = "cash_drag"
)

// Recommendation is a deterministic analyzer finding, not advice
type Recommendation struct {
	Type              RecommendationType `json:"type"`
	Severity          Severity           `json:"severity"`
	AffectedPositions []string           `json:"affected_positions"`
	ExpectedImpact    string             `json:"expected_impact"`
	Metric            float64            `json:"metric"`
}

// OptimizationResult is the cached payload of the optimization job
type OptimizationResult struct {
	PortfolioID     string           `json:"portfolio_id"`
	TotalValue      float64          `json:"total_value"`
	PositionCount   int              `json:"position_count"`
	HHI             float64          `json:"hhi"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
}
