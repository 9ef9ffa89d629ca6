package regime

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/indicators"
)

// ErrNoModel means no trained HMM exists for the market
var ErrNoModel = errors.New("no trained hmm model")

// Observation alphabet: 5 daily-return bins × 4 volatility bins
const (
	ReturnBins         = 5
	VolatilityBins     = 4
	ObservationSymbols = ReturnBins * VolatilityBins

	// ObservationWindow is the number of returns behind each volatility reading
	ObservationWindow = 5
)

// Bin edges; returns are daily percent, volatility annualized percent
var (
	returnEdges     = [ReturnBins - 1]float64{-2, -0.5, 0.5, 2}
	volatilityEdges = [VolatilityBins - 1]float64{15, 25, 35}
)

// Symbol encodes a (return, volatility) pair into [0, ObservationSymbols)
func Symbol(dailyReturnPct, annualVolPct float64) int {
	return bin(dailyReturnPct, returnEdges[:])*VolatilityBins + bin(annualVolPct, volatilityEdges[:])
}

func bin(x float64, edges []float64) int {
	for i, e := range edges {
		if x < e {
			return i
		}
	}
	return len(edges)
}

// Observe discretizes daily log returns into symbols.
// The first ObservationWindow-1 returns only seed the volatility window.
func Observe(returns []float64) []int {
	if len(returns) < ObservationWindow {
		return nil
	}
	out := make([]int, 0, len(returns)-ObservationWindow+1)
	for i := ObservationWindow - 1; i < len(returns); i++ {
		window := returns[i-ObservationWindow+1 : i+1]
		vol := indicators.StdDev(window) * math.Sqrt(indicators.TradingDays) * 100
		out = append(out, Symbol(returns[i]*100, vol))
	}
	return out
}

// Infer estimates the current state distribution from the last observation's
// emission column. An uninformative observation yields the uniform distribution.
func Infer(model contracts.HMMModel, observations []int) (contracts.StateProbabilities, error) {
	if len(observations) == 0 {
		return contracts.StateProbabilities{}, fmt.Errorf("infer: %w", indicators.ErrInsufficientData)
	}
	obs := observations[len(observations)-1]
	if obs < 0 || obs >= model.ObservationSymbols {
		return contracts.StateProbabilities{}, fmt.Errorf("infer: symbol %d outside alphabet of %d", obs, model.ObservationSymbols)
	}

	var v [4]float64
	for s := range v {
		v[s] = model.Emission[s][obs]
	}
	return contracts.ProbabilitiesFromVector(normalize(v)), nil
}

// Forecast propagates p through n transition steps, renormalizing after each
func Forecast(transition [][]float64, p contracts.StateProbabilities, n int) contracts.StateProbabilities {
	v := normalize(p.Vector())
	for step := 0; step < n; step++ {
		var next [4]float64
		for i := range v {
			for j := range next {
				next[j] += v[i] * transition[i][j]
			}
		}
		v = normalize(next)
	}
	return contracts.ProbabilitiesFromVector(v)
}

func normalize(v [4]float64) [4]float64 {
	sum := 0.0
	for i, x := range v {
		if x < 0 || math.IsNaN(x) {
			v[i] = 0
			continue
		}
		sum += x
	}
	if sum == 0 {
		return [4]float64{0.25, 0.25, 0.25, 0.25}
	}
	for i := range v {
		v[i] /= sum
	}
	return v
}

// ConfidenceBucket maps the max probability onto high (>0.7), medium (>0.5) or low
func ConfidenceBucket(maxProb float64) contracts.ConfidenceLevel {
	switch {
	case maxProb > 0.7:
		return contracts.ConfidenceHigh
	case maxProb > 0.5:
		return contracts.ConfidenceMedium
	default:
		return contracts.ConfidenceLow
	}
}

// Train estimates a model by counting over rule-labelled history.
// labels[i] is the regime on the day observations[i] was made; add-one smoothing
// keeps every transition and emission strictly positive.
func Train(name, market string, labels []contracts.RegimeType, observations []int, start, end time.Time) (contracts.HMMModel, error) {
	if len(labels) != len(observations) {
		return contracts.HMMModel{}, fmt.Errorf("train: %d labels vs %d observations", len(labels), len(observations))
	}
	if len(labels) < 2 {
		return contracts.HMMModel{}, fmt.Errorf("train: %w", indicators.ErrInsufficientData)
	}

	index := make(map[contracts.RegimeType]int, len(contracts.RegimeStates))
	names := make([]string, len(contracts.RegimeStates))
	for i, s := range contracts.RegimeStates {
		index[s] = i
		names[i] = string(s)
	}

	S := len(contracts.RegimeStates)
	transition := filled(S, S, 1)
	emission := filled(S, ObservationSymbols, 1)

	for i, label := range labels {
		s, ok := index[label]
		if !ok {
			return contracts.HMMModel{}, fmt.Errorf("train: unknown regime %q", label)
		}
		if observations[i] < 0 || observations[i] >= ObservationSymbols {
			return contracts.HMMModel{}, fmt.Errorf("train: symbol %d outside alphabet", observations[i])
		}
		emission[s][observations[i]]++
		if i > 0 {
			transition[index[labels[i-1]]][s]++
		}
	}
	rowNormalize(transition)
	rowNormalize(emission)

	// in-sample accuracy of the emission-only estimate
	hits := 0
	for i, label := range labels {
		var v [4]float64
		for s := 0; s < S; s++ {
			v[s] = emission[s][observations[i]]
		}
		if best, _ := contracts.ProbabilitiesFromVector(v).MostLikely(); best == label {
			hits++
		}
	}
	accuracy := float64(hits) / float64(len(labels))

	model := contracts.HMMModel{
		Name:               name,
		Market:             market,
		TrainedOn:          contracts.DateOnly(end),
		NumStates:          S,
		StateNames:         names,
		Transition:         transition,
		Emission:           emission,
		ObservationSymbols: ObservationSymbols,
		TrainingStart:      contracts.DateOnly(start),
		TrainingEnd:        contracts.DateOnly(end),
		Accuracy:           &accuracy,
	}
	return model, model.Validate()
}

func filled(rows, cols int, v float64) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		for j := range m[i] {
			m[i][j] = v
		}
	}
	return m
}

func rowNormalize(m [][]float64) {
	for _, row := range m {
		sum := 0.0
		for _, x := range row {
			sum += x
		}
		for j := range row {
			row[j] /= sum
		}
	}
}
