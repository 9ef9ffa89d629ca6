package contracts

import (
	"errors"
	"fmt"
	"math"
)

// RiskAppetite of a user
type RiskAppetite string

const (
	AppetiteConservative RiskAppetite = "conservative"
	AppetiteBalanced     RiskAppetite = "balanced"
	AppetiteAggressive   RiskAppetite = "aggressive"
)

// SignalSensitivity of a user
type SignalSensitivity string

const (
	SensitivityLow    SignalSensitivity = "low"
	SensitivityMedium SignalSensitivity = "medium"
	SensitivityHigh   SignalSensitivity = "high"
)

// FactorWeights must sum to approximately 1
type FactorWeights struct {
	Sentiment   float64 `json:"sentiment"`
	Technical   float64 `json:"technical"`
	Fundamental float64 `json:"fundamental"`
}

// UserPreferences tune alerting and forecasts for one user
type UserPreferences struct {
	UserID                string            `json:"user_id"`
	RiskAppetite          RiskAppetite      `json:"risk_appetite"`
	SignalSensitivity     SignalSensitivity `json:"signal_sensitivity"`
	ForecastHorizonMonths int               `json:"forecast_horizon_months"`
	Weights               FactorWeights     `json:"factor_weights"`
}

var ErrInvalidPreferences = errors.New("invalid user preferences")

// DefaultPreferences is used until a user saves their own
func DefaultPreferences(userID string) UserPreferences {
	return UserPreferences{
		UserID:                userID,
		RiskAppetite:          AppetiteBalanced,
		SignalSensitivity:     SensitivityMedium,
		ForecastHorizonMonths: 6,
		Weights:               FactorWeights{Sentiment: 0.3, Technical: 0.3, Fundamental: 0.4},
	}
}

// Validate enforces enum membership, the horizon range and weight normalization
func (p UserPreferences) Validate() error {
	switch p.RiskAppetite {
	case AppetiteConservative, AppetiteBalanced, AppetiteAggressive:
	default:
		return fmt.Errorf("%w: risk appetite %q", ErrInvalidPreferences, p.RiskAppetite)
	}
	switch p.SignalSensitivity {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
	default:
		return fmt.Errorf("%w: signal sensitivity %q", ErrInvalidPreferences, p.SignalSensitivity)
	}
	if p.ForecastHorizonMonths < 1 || p.ForecastHorizonMonths > 24 {
		return fmt.Errorf("%w: forecast horizon %d not in [1,24]", ErrInvalidPreferences, p.ForecastHorizonMonths)
	}
	w := p.Weights
	if w.Sentiment < 0 || w.Technical < 0 || w.Fundamental < 0 {
		return fmt.Errorf("%w: negative factor weight", ErrInvalidPreferences)
	}
	if sum := w.Sentiment + w.Technical + w.Fundamental; math.Abs(sum-1) > 0.01 {
		return fmt.Errorf("%w: factor weights sum to %.3f", ErrInvalidPreferences, sum)
	}
	return nil
}

// Multiplier scales alert thresholds; higher sensitivity alerts sooner
func (s SignalSensitivity) Multiplier() float64 {
	switch s {
	case SensitivityLow:
		return 1.2
	case SensitivityHigh:
		return 0.8
	default:
		return 1.0
	}
}
