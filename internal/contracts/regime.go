package contracts

import (
	"fmt"
	"math"
	"time"
)

// RegimeType is a discrete market state
type RegimeType string

const (
	RegimeBull           RegimeType = "bull"
	RegimeBear           RegimeType = "bear"
	RegimeHighVolatility RegimeType = "high_volatility"
	RegimeNormal         RegimeType = "normal"
)

// RegimeStates is the fixed state order used by probability vectors and HMM matrices
var RegimeStates = [4]RegimeType{RegimeBull, RegimeBear, RegimeHighVolatility, RegimeNormal}

// Multiplier is the factor applied to base alert thresholds under this regime
func (r RegimeType) Multiplier() float64 {
	switch r {
	case RegimeBull:
		return 0.8
	case RegimeBear:
		return 1.3
	case RegimeHighVolatility:
		return 1.5
	default:
		return 1.0
	}
}

// ParseRegimeType accepts the stored regime names
func ParseRegimeType(s string) (RegimeType, error) {
	switch RegimeType(s) {
	case RegimeBull, RegimeBear, RegimeHighVolatility, RegimeNormal:
		return RegimeType(s), nil
	}
	return "", fmt.Errorf("unknown regime type %q", s)
}

// MarketRegime is the daily classification, unique by date
type MarketRegime struct {
	ID                  int64      `json:"id,omitempty"`
	Date                time.Time  `json:"date"`
	Type                RegimeType `json:"regime_type"`
	VolatilityLevel     float64    `json:"volatility_level"` // annualized percent
	MarketReturn        float64    `json:"market_return"`    // cumulative percent
	Confidence          float64    `json:"confidence"`       // 0-100
	BenchmarkTicker     string     `json:"benchmark_ticker"`
	LookbackDays        int        `json:"lookback_days"`
	ThresholdMultiplier float64    `json:"threshold_multiplier"`
}

// StateProbabilities is a distribution over RegimeStates
type StateProbabilities struct {
	Bull           float64 `json:"bull"`
	Bear           float64 `json:"bear"`
	HighVolatility float64 `json:"high_volatility"`
	Normal         float64 `json:"normal"`
}

// ProbabilityTolerance bounds how far a distribution may drift from 1
const ProbabilityTolerance = 0.01

// ProbabilitiesFromVector maps a vector in RegimeStates order
func ProbabilitiesFromVector(v [4]float64) StateProbabilities {
	return StateProbabilities{Bull: v[0], Bear: v[1], HighVolatility: v[2], Normal: v[3]}
}

// Vector returns the probabilities in RegimeStates order
func (p StateProbabilities) Vector() [4]float64 {
	return [4]float64{p.Bull, p.Bear, p.HighVolatility, p.Normal}
}

// Sum of all four probabilities
func (p StateProbabilities) Sum() float64 {
	return p.Bull + p.Bear + p.HighVolatility + p.Normal
}

// Valid checks non-negativity and that the sum is within tolerance of 1
func (p StateProbabilities) Valid() bool {
	for _, x := range p.Vector() {
		if x < 0 || math.IsNaN(x) {
			return false
		}
	}
	return math.Abs(p.Sum()-1) <= ProbabilityTolerance
}

// MostLikely returns the argmax state and its probability.
// Ties resolve to the earlier state in RegimeStates.
func (p StateProbabilities) MostLikely() (RegimeType, float64) {
	v := p.Vector()
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return RegimeStates[best], v[best]
}

// ConfidenceLevel buckets a forecast's max probability
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// RegimeForecast is unique by (forecast_date, horizon_days)
type RegimeForecast struct {
	ID                    int64              `json:"id,omitempty"`
	ForecastDate          time.Time          `json:"forecast_date"`
	HorizonDays           int                `json:"horizon_days"`
	PredictedRegime       RegimeType         `json:"predicted_regime"`
	Probabilities         StateProbabilities `json:"regime_probabilities"`
	TransitionProbability float64            `json:"transition_probability"`
	Confidence            ConfidenceLevel    `json:"confidence_level"`
	ModelID               *int64             `json:"hmm_model_id,omitempty"`
}

// HMMModel holds immutable, offline-trained parameters.
// Transition is S×S, Emission is S×O, both row-stochastic.
type HMMModel struct {
	ID                 int64       `json:"id,omitempty"`
	Name               string      `json:"model_name"`
	Market             string      `json:"market"`
	TrainedOn          time.Time   `json:"trained_on_date"`
	NumStates          int         `json:"num_states"`
	StateNames         []string    `json:"state_names"`
	Transition         [][]float64 `json:"transition_matrix"`
	Emission           [][]float64 `json:"emission_params"`
	ObservationSymbols int         `json:"observation_symbols"`
	TrainingStart      time.Time   `json:"training_data_start"`
	TrainingEnd        time.Time   `json:"training_data_end"`
	Accuracy           *float64    `json:"model_accuracy,omitempty"`
}

// Validate checks matrix shapes and that every row is a distribution
func (m HMMModel) Validate() error {
	if m.NumStates != len(RegimeStates) {
		return fmt.Errorf("hmm %s: expected %d states, got %d", m.Name, len(RegimeStates), m.NumStates)
	}
	if len(m.Transition) != m.NumStates || len(m.Emission) != m.NumStates {
		return fmt.Errorf("hmm %s: matrix rows do not match state count", m.Name)
	}
	for i := 0; i < m.NumStates; i++ {
		if len(m.Transition[i]) != m.NumStates {
			return fmt.Errorf("hmm %s: transition row %d has %d columns", m.Name, i, len(m.Transition[i]))
		}
		if len(m.Emission[i]) != m.ObservationSymbols {
			return fmt.Errorf("hmm %s: emission row %d has %d columns", m.Name, i, len(m.Emission[i]))
		}
		if !rowStochastic(m.Transition[i]) {
			return fmt.Errorf("hmm %s: transition row %d is not a distribution", m.Name, i)
		}
		if !rowStochastic(m.Emission[i]) {
			return fmt.Errorf("hmm %s: emission row %d is not a distribution", m.Name, i)
		}
	}
	return nil
}

func rowStochastic(row []float64) bool {
	sum := 0.0
	for _, x := range row {
		if x < 0 || math.IsNaN(x) {
			return false
		}
		sum += x
	}
	return math.Abs(sum-1) <= ProbabilityTolerance
}
