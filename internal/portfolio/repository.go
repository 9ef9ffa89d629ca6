package portfolio

import (
	"context"
	"fmt"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/database"
)

// Repository reads portfolios, their positions and owner preferences
// ⭐ SSOT: Portfolio 데이터 조회는 여기서만
type Repository struct {
	db database.Querier
}

// NewRepository creates a new portfolio repository
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// ListPortfolios returns every portfolio, oldest first
func (r *Repository) ListPortfolios(ctx context.Context) ([]contracts.Portfolio, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, name FROM portfolios ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.Portfolio, 0)
	for rows.Next() {
		var p contracts.Portfolio
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns one portfolio
func (r *Repository) Get(ctx context.Context, id string) (contracts.Portfolio, error) {
	var p contracts.Portfolio
	err := r.db.QueryRow(ctx, `SELECT id, user_id, name FROM portfolios WHERE id = $1`, id).
		Scan(&p.ID, &p.UserID, &p.Name)
	if err != nil {
		return p, fmt.Errorf("failed to get portfolio %s: %w", id, err)
	}
	return p, nil
}

// Positions returns the open positions of every account in the portfolio
func (r *Repository) Positions(ctx context.Context, portfolioID string) ([]contracts.Position, error) {
	query := `
		SELECT a.portfolio_id, p.account_id, p.ticker, p.quantity, p.price,
		       p.market_value, COALESCE(p.sector, '')
		FROM positions p
		JOIN accounts a ON a.id = p.account_id
		WHERE a.portfolio_id = $1
		  AND p.quantity > 0
		ORDER BY p.ticker
	`

	rows, err := r.db.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.Position, 0)
	for rows.Next() {
		var p contracts.Position
		if err := rows.Scan(&p.PortfolioID, &p.AccountID, &p.Ticker, &p.Quantity, &p.Price,
			&p.MarketValue, &p.Sector); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CashBalance sums cash across the portfolio's accounts
func (r *Repository) CashBalance(ctx context.Context, portfolioID string) (float64, error) {
	var cash float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(cash_balance), 0) FROM accounts WHERE portfolio_id = $1`, portfolioID,
	).Scan(&cash)
	if err != nil {
		return 0, fmt.Errorf("failed to query cash balance: %w", err)
	}
	return cash, nil
}

// Preferences returns the owner's saved preferences or the defaults
func (r *Repository) Preferences(ctx context.Context, userID string) (contracts.UserPreferences, error) {
	query := `
		SELECT user_id, risk_appetite, signal_sensitivity, forecast_horizon_months,
		       sentiment_weight, technical_weight, fundamental_weight
		FROM user_preferences
		WHERE user_id = $1
	`

	var p contracts.UserPreferences
	var appetite, sensitivity string
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &appetite, &sensitivity, &p.ForecastHorizonMonths,
		&p.Weights.Sentiment, &p.Weights.Technical, &p.Weights.Fundamental,
	)
	if database.IsNoRows(err) {
		return contracts.DefaultPreferences(userID), nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to query preferences: %w", err)
	}
	p.RiskAppetite = contracts.RiskAppetite(appetite)
	p.SignalSensitivity = contracts.SignalSensitivity(sensitivity)
	if err := p.Validate(); err != nil {
		return contracts.DefaultPreferences(userID), nil
	}
	return p, nil
}

// SavePreferences validates and upserts a user's preferences
func (r *Repository) SavePreferences(ctx context.Context, p contracts.UserPreferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO user_preferences
			(user_id, risk_appetite, signal_sensitivity, forecast_horizon_months,
			 sentiment_weight, technical_weight, fundamental_weight)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			risk_appetite = EXCLUDED.risk_appetite,
			signal_sensitivity = EXCLUDED.signal_sensitivity,
			forecast_horizon_months = EXCLUDED.forecast_horizon_months,
			sentiment_weight = EXCLUDED.sentiment_weight,
			technical_weight = EXCLUDED.technical_weight,
			fundamental_weight = EXCLUDED.fundamental_weight,
			updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		p.UserID, string(p.RiskAppetite), string(p.SignalSensitivity), p.ForecastHorizonMonths,
		p.Weights.Sentiment, p.Weights.Technical, p.Weights.Fundamental,
	)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
