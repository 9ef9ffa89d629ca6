package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/indicators"
	"github.com/wonny/folio/backend/internal/prices"
	"github.com/wonny/folio/backend/pkg/logger"
)

// ErrNoPriceData means fewer than two closes exist in the window
var ErrNoPriceData = errors.New("no price data in window")

// PriceReader loads stored closes
type PriceReader interface {
	GetRange(ctx context.Context, ticker string, from, to time.Time) ([]contracts.PricePoint, error)
}

// Refresher brings a stored series up to date
type Refresher interface {
	Refresh(ctx context.Context, ticker string, lookbackDays int) (prices.RefreshResult, error)
}

// Config tunes the evaluator
type Config struct {
	RiskFreeRate float64
	Weights      ScoreWeights
}

// Evaluator composes the indicator kernel into risk assessments
// ⭐ SSOT: 종목/포트폴리오 리스크 평가는 여기서만
type Evaluator struct {
	prices    PriceReader
	refresher Refresher
	cfg       Config
	logger    *logger.Logger
	now       func() time.Time
}

// NewEvaluator creates an evaluator; refresher may be nil to read stored data only
func NewEvaluator(reader PriceReader, refresher Refresher, cfg Config, log *logger.Logger) *Evaluator {
	if cfg.Weights == (ScoreWeights{}) {
		cfg.Weights = DefaultScoreWeights()
	}
	return &Evaluator{
		prices:    reader,
		refresher: refresher,
		cfg:       cfg,
		logger:    log.Component("risk.evaluator"),
		now:       time.Now,
	}
}

// Weights returns the score weights in use
func (e *Evaluator) Weights() ScoreWeights {
	return e.cfg.Weights
}

// Assess computes the metric bundle for ticker over lookbackDays calendar days.
// Metrics the window cannot support are nil; the score renormalizes over the rest.
func (e *Evaluator) Assess(ctx context.Context, ticker string, lookbackDays int, benchmark string) (contracts.RiskAssessment, error) {
	e.ensureFresh(ctx, ticker, lookbackDays)
	if benchmark != "" && benchmark != ticker {
		e.ensureFresh(ctx, benchmark, lookbackDays)
	}

	to := e.now()
	from := to.AddDate(0, 0, -lookbackDays)

	asset, err := e.prices.GetRange(ctx, ticker, from, to)
	if err != nil {
		return contracts.RiskAssessment{}, fmt.Errorf("load %s: %w", ticker, err)
	}

	var bench []contracts.PricePoint
	if benchmark != "" {
		bench, err = e.prices.GetRange(ctx, benchmark, from, to)
		if err != nil {
			return contracts.RiskAssessment{}, fmt.Errorf("load benchmark %s: %w", benchmark, err)
		}
	}

	a, err := Compute(ticker, asset, bench, e.cfg)
	if err != nil {
		return a, err
	}
	a.Benchmark = benchmark
	a.AsOf = to
	return a, nil
}

// ensureFresh refreshes prices when a refresher is wired; failures fall back to stored data
func (e *Evaluator) ensureFresh(ctx context.Context, ticker string, lookbackDays int) {
	if e.refresher == nil {
		return
	}
	if _, err := e.refresher.Refresh(ctx, ticker, lookbackDays); err != nil {
		e.logger.Ticker(ticker).WithError(err).Debug("Refresh failed, using stored prices")
	}
}

// Compute is the pure part of Assess
func Compute(ticker string, asset, bench []contracts.PricePoint, cfg Config) (contracts.RiskAssessment, error) {
	if cfg.Weights == (ScoreWeights{}) {
		cfg.Weights = DefaultScoreWeights()
	}
	a := contracts.RiskAssessment{Ticker: ticker, Points: len(asset)}

	closes := contracts.Closes(asset)
	returns, err := indicators.LogReturns(closes)
	if err != nil {
		if errors.Is(err, indicators.ErrInsufficientData) {
			return a, fmt.Errorf("%s: %w", ticker, ErrNoPriceData)
		}
		return a, fmt.Errorf("%s returns: %w", ticker, err)
	}

	vol, err := indicators.Volatility(returns)
	if err != nil {
		return a, fmt.Errorf("%s volatility: %w", ticker, err)
	}
	a.Volatility = vol

	dd, err := indicators.MaxDrawdown(closes)
	if err != nil {
		return a, fmt.Errorf("%s drawdown: %w", ticker, err)
	}
	a.MaxDrawdown = dd

	if len(bench) > 0 {
		if ra, rb, err := indicators.AlignReturns(asset, bench); err == nil {
			a.Beta = indicators.Ptr(indicators.Beta(ra, rb))
		}
	}

	a.Sharpe = indicators.Ptr(indicators.Sharpe(returns, cfg.RiskFreeRate))
	a.Sortino = indicators.Ptr(indicators.Sortino(returns, cfg.RiskFreeRate))
	a.VaR95 = indicators.Ptr(indicators.VaR(returns, 0.95))
	a.VaR99 = indicators.Ptr(indicators.VaR(returns, 0.99))
	a.ES95 = indicators.Ptr(indicators.ExpectedShortfall(returns, 0.95))
	a.ES99 = indicators.Ptr(indicators.ExpectedShortfall(returns, 0.99))

	a.RiskScore = cfg.Weights.Score(&a.Volatility, &a.MaxDrawdown, a.Beta, a.Sharpe)
	a.Level = contracts.LevelFromScore(a.RiskScore)
	return a, nil
}
