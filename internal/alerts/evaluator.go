package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/logger"
	"github.com/wonny/folio/backend/pkg/metrics"
)

// SnapshotHistory reads portfolio-level risk snapshots
type SnapshotHistory interface {
	PortfolioHistory(ctx context.Context, portfolioID string, from, to time.Time) ([]contracts.RiskSnapshot, error)
}

// ThresholdStore returns base bands, materializing defaults on first read
type ThresholdStore interface {
	Thresholds(ctx context.Context, portfolioID string) (contracts.RiskThresholdSettings, error)
}

// RegimeSource returns the regime in force on a date
type RegimeSource interface {
	Current(ctx context.Context, date time.Time) (contracts.MarketRegime, error)
}

// Sink persists emitted alerts; inserted is false for a duplicate
type Sink interface {
	SaveAlert(ctx context.Context, a contracts.Alert) (id int64, inserted bool, err error)
}

// Evaluation is the outcome of one portfolio check
type Evaluation struct {
	PortfolioID string                          `json:"portfolio_id"`
	Regime      contracts.RegimeType            `json:"regime"`
	Thresholds  contracts.RiskThresholdSettings `json:"thresholds"`
	Alerts      []contracts.Alert               `json:"alerts"`
}

// Config holds the spike detector defaults
type Config struct {
	SpikeLookbackDays int
	SpikeThresholdPct float64
}

// DefaultConfig flags a 20% day-over-day risk score rise within a week
func DefaultConfig() Config {
	return Config{SpikeLookbackDays: 7, SpikeThresholdPct: 20}
}

// Evaluator produces portfolio alerts from snapshots, thresholds and regime.
// It only reads; persisting is the caller's job.
type Evaluator struct {
	history    SnapshotHistory
	thresholds ThresholdStore
	regimes    RegimeSource
	cfg        Config
	metrics    *metrics.Recorder
	logger     *logger.Logger
	now        func() time.Time
}

// NewEvaluator creates an alert evaluator
func NewEvaluator(history SnapshotHistory, thresholds ThresholdStore, regimes RegimeSource, cfg Config, rec *metrics.Recorder, log *logger.Logger) *Evaluator {
	if cfg.SpikeLookbackDays <= 0 {
		cfg.SpikeLookbackDays = DefaultConfig().SpikeLookbackDays
	}
	if cfg.SpikeThresholdPct <= 0 {
		cfg.SpikeThresholdPct = DefaultConfig().SpikeThresholdPct
	}
	return &Evaluator{
		history:    history,
		thresholds: thresholds,
		regimes:    regimes,
		cfg:        cfg,
		metrics:    rec,
		logger:     log.Component("alerts.evaluator"),
		now:        time.Now,
	}
}

// DetectRiskIncreases walks consecutive portfolio snapshots in the window and
// flags every rise of at least thresholdPct percent over a positive prior score.
func (e *Evaluator) DetectRiskIncreases(ctx context.Context, portfolioID string, lookbackDays int, thresholdPct float64) ([]contracts.Alert, error) {
	to := contracts.DateOnly(e.now())
	from := to.AddDate(0, 0, -lookbackDays)

	history, err := e.history.PortfolioHistory(ctx, portfolioID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load snapshot history %s: %w", portfolioID, err)
	}
	return RiskSpikes(history, thresholdPct), nil
}

// RiskSpikes is the pure part of DetectRiskIncreases; history must be date-ascending
func RiskSpikes(history []contracts.RiskSnapshot, thresholdPct float64) []contracts.Alert {
	var out []contracts.Alert
	for i := 1; i < len(history); i++ {
		prev, curr := history[i-1], history[i]
		if prev.RiskScore <= 0 {
			continue
		}
		change := (curr.RiskScore - prev.RiskScore) / prev.RiskScore * 100
		if change < thresholdPct {
			continue
		}

		severity := contracts.SeverityWarning
		if change >= 2*thresholdPct {
			severity = contracts.SeverityCritical
		}
		previous, pct, th := prev.RiskScore, change, thresholdPct
		out = append(out, contracts.Alert{
			Kind:        contracts.AlertRiskSpike,
			PortfolioID: curr.PortfolioID,
			Metric:      "risk_score",
			Previous:    &previous,
			Current:     curr.RiskScore,
			ChangePct:   &pct,
			Threshold:   &th,
			Severity:    severity,
			ObservedOn:  contracts.DateOnly(curr.SnapshotDate),
		})
	}
	return out
}

// Evaluate checks the latest snapshot of a portfolio against regime-adjusted
// thresholds and appends any recent risk spikes.
func (e *Evaluator) Evaluate(ctx context.Context, portfolioID string) (Evaluation, error) {
	now := e.now()
	eval := Evaluation{PortfolioID: portfolioID}

	regime, err := e.regimes.Current(ctx, now)
	if err != nil {
		return eval, fmt.Errorf("current regime: %w", err)
	}
	eval.Regime = regime.Type

	base, err := e.thresholds.Thresholds(ctx, portfolioID)
	if err != nil {
		return eval, fmt.Errorf("thresholds %s: %w", portfolioID, err)
	}
	eval.Thresholds = Effective(base, regime.Type)

	today := contracts.DateOnly(now)
	history, err := e.history.PortfolioHistory(ctx, portfolioID, today.AddDate(0, 0, -e.cfg.SpikeLookbackDays), today)
	if err != nil {
		return eval, fmt.Errorf("load snapshot history %s: %w", portfolioID, err)
	}
	if len(history) == 0 {
		return eval, nil
	}

	eval.Alerts = append(eval.Alerts, EvaluateSnapshot(history[len(history)-1], eval.Thresholds)...)
	eval.Alerts = append(eval.Alerts, RiskSpikes(history, e.cfg.SpikeThresholdPct)...)

	e.logger.WithFields(map[string]interface{}{
		"portfolio_id": portfolioID,
		"regime":       regime.Type,
		"alerts":       len(eval.Alerts),
	}).Debug("Portfolio evaluated")

	return eval, nil
}

// Emit persists alerts through sink and counts the new ones
func Emit(ctx context.Context, sink Sink, rec *metrics.Recorder, alerts []contracts.Alert) (int, error) {
	inserted := 0
	for _, a := range alerts {
		_, ok, err := sink.SaveAlert(ctx, a)
		if err != nil {
			return inserted, fmt.Errorf("save %s alert: %w", a.Kind, err)
		}
		if ok {
			inserted++
			rec.RecordAlert(string(a.Kind), string(a.Severity))
		}
	}
	return inserted, nil
}
