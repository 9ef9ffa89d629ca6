package snapshots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/internal/portfolio"
	"github.com/wonny/folio/backend/internal/risk"
	"github.com/wonny/folio/backend/pkg/logger"
)

// ErrNoHoldings means the portfolio holds nothing; callers skip rather than fail
var ErrNoHoldings = errors.New("no holdings found")

// Assessor produces a per-ticker risk assessment
type Assessor interface {
	Assess(ctx context.Context, ticker string, lookbackDays int, benchmark string) (contracts.RiskAssessment, error)
}

// PositionSource lists the open positions of a portfolio
type PositionSource interface {
	Positions(ctx context.Context, portfolioID string) ([]contracts.Position, error)
}

// RiskStore persists risk snapshots with upsert semantics on the unique key
type RiskStore interface {
	UpsertRiskSnapshot(ctx context.Context, s contracts.RiskSnapshot) error
}

// WriterConfig selects the assessment window
type WriterConfig struct {
	LookbackDays int
	Benchmark    string
	Weights      risk.ScoreWeights
}

// WriteResult summarizes one portfolio's daily write
type WriteResult struct {
	PortfolioID string
	Date        time.Time
	Positions   int // position rows written
	Failed      []string
	Portfolio   *contracts.RiskSnapshot
}

// Writer materializes daily position and portfolio risk snapshots
// ⭐ SSOT: 일별 리스크 스냅샷 작성은 여기서만
type Writer struct {
	assessor  Assessor
	positions PositionSource
	store     RiskStore
	cfg       WriterConfig
	logger    *logger.Logger
}

// NewWriter creates a snapshot writer
func NewWriter(assessor Assessor, positions PositionSource, store RiskStore, cfg WriterConfig, log *logger.Logger) *Writer {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 90
	}
	if cfg.Benchmark == "" {
		cfg.Benchmark = "SPY"
	}
	return &Writer{
		assessor:  assessor,
		positions: positions,
		store:     store,
		cfg:       cfg,
		logger:    log.Component("snapshots.writer"),
	}
}

// WriteDaily assesses every held ticker and upserts the position rows, then the
// weighted portfolio row. Ticker failures are logged and counted, not fatal.
func (w *Writer) WriteDaily(ctx context.Context, portfolioID string, date time.Time) (WriteResult, error) {
	date = contracts.DateOnly(date)
	result := WriteResult{PortfolioID: portfolioID, Date: date}

	raw, err := w.positions.Positions(ctx, portfolioID)
	if err != nil {
		return result, fmt.Errorf("load positions: %w", err)
	}
	held := portfolio.Aggregate(raw)
	if len(held) == 0 {
		return result, fmt.Errorf("portfolio %s: %w", portfolioID, ErrNoHoldings)
	}

	log := w.logger.WithField("portfolio_id", portfolioID)
	weighted := make([]risk.WeightedPosition, 0, len(held))
	for _, p := range held {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		a, err := w.assessor.Assess(ctx, p.Ticker, w.cfg.LookbackDays, w.cfg.Benchmark)
		if err != nil {
			log.Ticker(p.Ticker).WithError(err).Warn("Position assessment failed")
			result.Failed = append(result.Failed, p.Ticker)
			continue
		}

		snap := contracts.SnapshotFromAssessment(portfolioID, date, contracts.SnapshotPosition, a)
		mv := p.MarketValue
		snap.MarketValue = &mv
		if err := w.store.UpsertRiskSnapshot(ctx, snap); err != nil {
			log.Ticker(p.Ticker).WithError(err).Warn("Position snapshot write failed")
			result.Failed = append(result.Failed, p.Ticker)
			continue
		}
		result.Positions++
		weighted = append(weighted, risk.WeightedPosition{MarketValue: p.MarketValue, Assessment: a})
	}

	if len(weighted) == 0 {
		return result, fmt.Errorf("portfolio %s: all %d positions failed", portfolioID, len(held))
	}

	agg, total, err := risk.AssessPortfolio(weighted, w.cfg.Weights)
	if err != nil {
		return result, fmt.Errorf("portfolio %s: %w", portfolioID, err)
	}
	snap := contracts.SnapshotFromAssessment(portfolioID, date, contracts.SnapshotPortfolio, agg)
	snap.TotalValue = &total
	if err := w.store.UpsertRiskSnapshot(ctx, snap); err != nil {
		return result, fmt.Errorf("write portfolio snapshot: %w", err)
	}
	result.Portfolio = &snap

	log.WithFields(map[string]interface{}{
		"date":       date.Format("2006-01-02"),
		"positions":  result.Positions,
		"failed":     len(result.Failed),
		"risk_score": snap.RiskScore,
	}).Info("Risk snapshot written")
	return result, nil
}
