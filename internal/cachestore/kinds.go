package cachestore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownKind is returned for a kind outside the table below
var ErrUnknownKind = errors.New("unknown cache kind")

// Kind names one cache table
type Kind string

const (
	KindOptimization     Kind = "optimization"
	KindCorrelations     Kind = "correlations"
	KindRollingBeta      Kind = "rolling_beta"
	KindDownsideRisk     Kind = "downside_risk"
	KindNews             Kind = "news"
	KindExplanation      Kind = "explanation"
	KindLongTermGuidance Kind = "long_term_guidance"
)

type kindSpec struct {
	table   string
	columns []string // key columns, in Key.Params order
	ttl     time.Duration
}

// ⭐ SSOT: 캐시 종류별 테이블, 키, TTL
var kinds = map[Kind]kindSpec{
	KindOptimization:     {"optimization_cache", []string{"portfolio_id"}, 6 * time.Hour},
	KindCorrelations:     {"correlation_cache", []string{"portfolio_id", "window_days"}, 6 * time.Hour},
	KindRollingBeta:      {"rolling_beta_cache", []string{"ticker", "benchmark", "window_days"}, 24 * time.Hour},
	KindDownsideRisk:     {"downside_risk_cache", []string{"portfolio_id", "lookback_days", "benchmark"}, 6 * time.Hour},
	KindNews:             {"news_cache", []string{"portfolio_id"}, 24 * time.Hour},
	KindExplanation:      {"explanation_cache", []string{"symbol", "narrative_type"}, time.Hour},
	KindLongTermGuidance: {"long_term_guidance_cache", []string{"portfolio_id", "goal", "horizon_years", "risk_tolerance"}, time.Hour},
}

// Kinds lists every kind in a stable order
func Kinds() []Kind {
	return []Kind{
		KindOptimization, KindCorrelations, KindRollingBeta, KindDownsideRisk,
		KindNews, KindExplanation, KindLongTermGuidance,
	}
}

// TTL returns the default lifetime of a kind
func (k Kind) TTL() (time.Duration, error) {
	spec, ok := kinds[k]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return spec.ttl, nil
}

// Key addresses one entry: the kind plus its key columns in order
type Key struct {
	Kind   Kind
	Params []string
}

func (k Key) validate() (kindSpec, error) {
	spec, ok := kinds[k.Kind]
	if !ok {
		return spec, fmt.Errorf("%w: %q", ErrUnknownKind, k.Kind)
	}
	if len(k.Params) != len(spec.columns) {
		return spec, fmt.Errorf("%s key needs %d params (%s), got %d",
			k.Kind, len(spec.columns), strings.Join(spec.columns, ", "), len(k.Params))
	}
	return spec, nil
}

// String is the flattened key used by the hot layer
func (k Key) String() string {
	return strings.Join(k.Params, ":")
}

// OptimizationKey addresses a portfolio's recommendations
func OptimizationKey(portfolioID string) Key {
	return Key{Kind: KindOptimization, Params: []string{portfolioID}}
}

// CorrelationsKey addresses a portfolio correlation matrix over windowDays
func CorrelationsKey(portfolioID string, windowDays int) Key {
	return Key{Kind: KindCorrelations, Params: []string{portfolioID, strconv.Itoa(windowDays)}}
}

// RollingBetaKey addresses a ticker's rolling beta series
func RollingBetaKey(ticker, benchmark string, windowDays int) Key {
	return Key{Kind: KindRollingBeta, Params: []string{ticker, benchmark, strconv.Itoa(windowDays)}}
}

// DownsideRiskKey addresses a portfolio's downside report
func DownsideRiskKey(portfolioID string, lookbackDays int, benchmark string) Key {
	return Key{Kind: KindDownsideRisk, Params: []string{portfolioID, strconv.Itoa(lookbackDays), benchmark}}
}

// NewsKey addresses a portfolio's aggregated news
func NewsKey(portfolioID string) Key {
	return Key{Kind: KindNews, Params: []string{portfolioID}}
}

// ExplanationKey addresses a narrative for a symbol
func ExplanationKey(symbol, narrativeType string) Key {
	return Key{Kind: KindExplanation, Params: []string{symbol, narrativeType}}
}

// LongTermGuidanceKey addresses goal-based guidance
func LongTermGuidanceKey(portfolioID, goal string, horizonYears int, riskTolerance string) Key {
	return Key{Kind: KindLongTermGuidance, Params: []string{portfolioID, goal, strconv.Itoa(horizonYears), riskTolerance}}
}
