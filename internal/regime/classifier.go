package regime

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/indicators"
)

// Thresholds are annualized volatility cut-offs in percent
type Thresholds struct {
	HighVolatility float64 `json:"high_vol_threshold"`
	BullVolatility float64 `json:"bull_vol_threshold"`
	BearVolatility float64 `json:"bear_vol_threshold"`
}

// DefaultThresholds 기본 임계값 (35/20/25)
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighVolatility: 35,
		BullVolatility: 20,
		BearVolatility: 25,
	}
}

// Distances at which a margin counts as fully confident
const (
	volScale    = 10.0 // percentage points of volatility
	returnScale = 5.0  // percentage points of cumulative return
)

// Classification is the outcome of the volatility/return rule
type Classification struct {
	Type       contracts.RegimeType
	Volatility float64 // annualized percent
	Return     float64 // cumulative percent
	Confidence float64 // 50-100
}

// Classifier applies the volatility/return rule
type Classifier struct {
	thresholds Thresholds
	log        zerolog.Logger
}

// NewClassifier creates a classifier with default thresholds
func NewClassifier(log zerolog.Logger) *Classifier {
	return NewClassifierWithThresholds(DefaultThresholds(), log)
}

// NewClassifierWithThresholds creates a classifier with custom thresholds
func NewClassifierWithThresholds(t Thresholds, log zerolog.Logger) *Classifier {
	return &Classifier{
		thresholds: t,
		log:        log.With().Str("component", "regime.classifier").Logger(),
	}
}

// Thresholds returns the cut-offs in use
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify computes volatility and cumulative return from closes and applies the rule
func (c *Classifier) Classify(closes []float64) (Classification, error) {
	returns, err := indicators.LogReturns(closes)
	if err != nil {
		return Classification{}, fmt.Errorf("regime returns: %w", err)
	}
	vol, err := indicators.Volatility(returns)
	if err != nil {
		return Classification{}, fmt.Errorf("regime volatility: %w", err)
	}
	ret, err := indicators.CumulativeReturn(closes)
	if err != nil {
		return Classification{}, fmt.Errorf("regime return: %w", err)
	}

	out := c.ClassifyMetrics(vol, ret)
	c.log.Debug().
		Str("regime", string(out.Type)).
		Float64("volatility", vol).
		Float64("return", ret).
		Float64("confidence", out.Confidence).
		Msg("Classified")
	return out, nil
}

// ClassifyMetrics applies the rule to precomputed metrics.
// Inequalities are strict: a value exactly at a threshold falls through to Normal.
func (c *Classifier) ClassifyMetrics(vol, ret float64) Classification {
	t := c.thresholds
	out := Classification{Volatility: vol, Return: ret}

	switch {
	case vol > t.HighVolatility:
		out.Type = contracts.RegimeHighVolatility
		out.Confidence = confidence(margin(vol-t.HighVolatility, volScale))
	case ret > 0 && vol < t.BullVolatility:
		out.Type = contracts.RegimeBull
		out.Confidence = confidence((margin(t.BullVolatility-vol, volScale) + margin(ret, returnScale)) / 2)
	case ret < 0 && vol > t.BearVolatility:
		out.Type = contracts.RegimeBear
		out.Confidence = confidence((margin(vol-t.BearVolatility, volScale) + margin(-ret, returnScale)) / 2)
	default:
		out.Type = contracts.RegimeNormal
		// Normal is only as certain as the nearest boundary is far away
		out.Confidence = confidence(c.normalMargin(vol, ret))
	}
	return out
}

// normalMargin is the distance to the closest rule that would have fired
func (c *Classifier) normalMargin(vol, ret float64) float64 {
	t := c.thresholds
	m := margin(t.HighVolatility-vol, volScale)
	switch {
	case ret > 0:
		m = math.Min(m, margin(vol-t.BullVolatility, volScale))
	case ret < 0:
		m = math.Min(m, margin(t.BearVolatility-vol, volScale))
	}
	return m
}

func margin(distance, scale float64) float64 {
	return math.Max(0, math.Min(1, distance/scale))
}

// confidence maps a margin in [0,1] onto [50,100]
func confidence(m float64) float64 {
	return 50 + 50*m
}
