package optimizer

// Constraints are the allocation limits recommendations are measured against
// ⭐ SSOT: 포트폴리오 제약조건은 여기서만
type Constraints struct {
	MaxSectorWeight float64 // 섹터당 최대 비중 (0.0 ~ 1.0)
	MaxWeight       float64 // 종목당 최대 비중 (0.0 ~ 1.0)
	MinWeight       float64 // 종목당 최소 비중 (0.0 ~ 1.0)
	MaxHHI          float64 // Herfindahl index above which the book is concentrated
	HighRiskScore   float64 // position risk score flagged as high risk
	CorrelationMax  float64 // pairwise correlation that joins a cluster
	MaxCashWeight   float64 // cash share of total value before it drags
}

// DefaultConstraints returns default constraint configuration
func DefaultConstraints() Constraints {
	return Constraints{
		MaxSectorWeight: 0.25, // 섹터당 최대 25%
		MaxWeight:       0.10, // 종목당 최대 10%
		MinWeight:       0.04, // 종목당 최소 4%
		MaxHHI:          0.15,
		HighRiskScore:   70,
		CorrelationMax:  0.80,
		MaxCashWeight:   0.10,
	}
}
