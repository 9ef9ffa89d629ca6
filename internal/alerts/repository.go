package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/database"
)

// Repository persists thresholds, alerts and watchlist rules
type Repository struct {
	db database.Querier
}

// NewRepository creates an alerts repository
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// Thresholds returns the base bands of a portfolio.
// The first read materializes the defaults so later edits have a row to update.
func (r *Repository) Thresholds(ctx context.Context, portfolioID string) (contracts.RiskThresholdSettings, error) {
	t, err := r.scanThresholds(ctx, portfolioID)
	if err == nil {
		return t, nil
	}
	if !database.IsNoRows(err) {
		return t, fmt.Errorf("query thresholds %s: %w", portfolioID, err)
	}

	def := contracts.DefaultRiskThresholds(portfolioID)
	if err := r.insertThresholds(ctx, def, false); err != nil {
		return def, err
	}
	return def, nil
}

// SaveThresholds replaces the base bands of a portfolio
func (r *Repository) SaveThresholds(ctx context.Context, t contracts.RiskThresholdSettings) error {
	return r.insertThresholds(ctx, t, true)
}

func (r *Repository) scanThresholds(ctx context.Context, portfolioID string) (contracts.RiskThresholdSettings, error) {
	t := contracts.RiskThresholdSettings{PortfolioID: portfolioID}
	err := r.db.QueryRow(ctx, `
		SELECT volatility_warning, volatility_critical, drawdown_warning, drawdown_critical,
		       beta_warning, beta_critical, risk_score_warning, risk_score_critical,
		       var_warning, var_critical
		FROM risk_threshold_settings
		WHERE portfolio_id = $1
	`, portfolioID).Scan(
		&t.VolatilityWarning, &t.VolatilityCritical, &t.DrawdownWarning, &t.DrawdownCritical,
		&t.BetaWarning, &t.BetaCritical, &t.RiskScoreWarning, &t.RiskScoreCritical,
		&t.VaRWarning, &t.VaRCritical,
	)
	return t, err
}

func (r *Repository) insertThresholds(ctx context.Context, t contracts.RiskThresholdSettings, replace bool) error {
	conflict := `ON CONFLICT (portfolio_id) DO NOTHING`
	if replace {
		conflict = `ON CONFLICT (portfolio_id) DO UPDATE SET
			volatility_warning = EXCLUDED.volatility_warning,
			volatility_critical = EXCLUDED.volatility_critical,
			drawdown_warning = EXCLUDED.drawdown_warning,
			drawdown_critical = EXCLUDED.drawdown_critical,
			beta_warning = EXCLUDED.beta_warning,
			beta_critical = EXCLUDED.beta_critical,
			risk_score_warning = EXCLUDED.risk_score_warning,
			risk_score_critical = EXCLUDED.risk_score_critical,
			var_warning = EXCLUDED.var_warning,
			var_critical = EXCLUDED.var_critical,
			updated_at = NOW()`
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO risk_threshold_settings
			(portfolio_id, volatility_warning, volatility_critical, drawdown_warning, drawdown_critical,
			 beta_warning, beta_critical, risk_score_warning, risk_score_critical,
			 var_warning, var_critical)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`+conflict,
		t.PortfolioID, t.VolatilityWarning, t.VolatilityCritical, t.DrawdownWarning, t.DrawdownCritical,
		t.BetaWarning, t.BetaCritical, t.RiskScoreWarning, t.RiskScoreCritical,
		t.VaRWarning, t.VaRCritical,
	)
	if err != nil {
		return fmt.Errorf("save thresholds %s: %w", t.PortfolioID, err)
	}
	return nil
}

// SaveAlert inserts an alert once per (kind, portfolio, ticker, rule, metric, severity, observed_on).
// A duplicate returns inserted=false.
func (r *Repository) SaveAlert(ctx context.Context, a contracts.Alert) (int64, bool, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO alerts
			(kind, portfolio_id, ticker, rule_id, metric, previous_value, current_value,
			 change_pct, threshold, severity, observed_on, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (kind, portfolio_id, ticker, rule_id, metric, severity, observed_on) DO NOTHING
		RETURNING id
	`, a.Kind, a.PortfolioID, a.Ticker, a.RuleID, a.Metric, a.Previous, a.Current,
		a.ChangePct, a.Threshold, a.Severity, a.ObservedOn, []byte(a.Payload)).Scan(&id)
	if database.IsNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert alert: %w", err)
	}
	return id, true, nil
}

// RecentAlerts returns the newest alerts of a portfolio
func (r *Repository) RecentAlerts(ctx context.Context, portfolioID string, limit int) ([]contracts.Alert, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, kind, portfolio_id, ticker, rule_id, metric, previous_value, current_value,
		       change_pct, threshold, severity, observed_on, payload, created_at
		FROM alerts
		WHERE portfolio_id = $1
		ORDER BY observed_on DESC, id DESC
		LIMIT $2
	`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []contracts.Alert
	for rows.Next() {
		var a contracts.Alert
		var payload []byte
		if err := rows.Scan(&a.ID, &a.Kind, &a.PortfolioID, &a.Ticker, &a.RuleID, &a.Metric,
			&a.Previous, &a.Current, &a.ChangePct, &a.Threshold, &a.Severity, &a.ObservedOn,
			&payload, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Payload = payload
		out = append(out, a)
	}
	return out, rows.Err()
}

// LastAlertAt returns when a watchlist rule last fired
func (r *Repository) LastAlertAt(ctx context.Context, ruleID int64) (time.Time, bool, error) {
	var last *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT MAX(observed_on) FROM alerts WHERE rule_id = $1
	`, ruleID).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last alert rule %d: %w", ruleID, err)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return *last, true, nil
}

// Rules returns the watchlist rules on a ticker
func (r *Repository) Rules(ctx context.Context, ticker string) ([]contracts.WatchlistRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, ticker, rule_type, threshold, cooldown_minutes, enabled
		FROM watchlist_alert_rules
		WHERE ticker = $1
		ORDER BY id
	`, ticker)
	if err != nil {
		return nil, fmt.Errorf("query watchlist rules %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []contracts.WatchlistRule
	for rows.Next() {
		var rule contracts.WatchlistRule
		var minutes int
		if err := rows.Scan(&rule.ID, &rule.UserID, &rule.Ticker, &rule.Type,
			&rule.Threshold, &minutes, &rule.Enabled); err != nil {
			return nil, fmt.Errorf("scan watchlist rule: %w", err)
		}
		rule.Cooldown = time.Duration(minutes) * time.Minute
		out = append(out, rule)
	}
	return out, rows.Err()
}

// SentimentDelta is the change between the two newest sentiment scores of a ticker
func (r *Repository) SentimentDelta(ctx context.Context, ticker string) (float64, bool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT score
		FROM ticker_sentiment
		WHERE ticker = $1
		ORDER BY as_of DESC
		LIMIT 2
	`, ticker)
	if err != nil {
		return 0, false, fmt.Errorf("query sentiment %s: %w", ticker, err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return 0, false, fmt.Errorf("scan sentiment: %w", err)
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return 0, false, err
	}
	if len(scores) < 2 {
		return 0, false, nil
	}
	return scores[0] - scores[1], true, nil
}
