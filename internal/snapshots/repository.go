package snapshots

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/database"
)

// ArchiveAge is how long risk snapshots are retained
const ArchiveAge = 365 * 24 * time.Hour

// Repository persists holdings, risk snapshots and detected transactions
// ⭐ SSOT: 스냅샷 저장소는 여기서만
type Repository struct {
	db database.Pool
}

// NewRepository creates a snapshot repository
func NewRepository(db database.Pool) *Repository {
	return &Repository{db: db}
}

// HoldingsOn returns the account's holdings snapshot lines on date
func (r *Repository) HoldingsOn(ctx context.Context, accountID string, date time.Time) ([]contracts.HoldingSnapshot, error) {
	query := `
		SELECT account_id, snapshot_date, COALESCE(ticker, ''), quantity, price, book_value, market_value
		FROM holdings_snapshots
		WHERE account_id = $1 AND snapshot_date = $2
		ORDER BY ticker NULLS FIRST
	`

	rows, err := r.db.Query(ctx, query, accountID, date)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	var out []contracts.HoldingSnapshot
	for rows.Next() {
		var h contracts.HoldingSnapshot
		if err := rows.Scan(&h.AccountID, &h.SnapshotDate, &h.Ticker, &h.Quantity, &h.Price,
			&h.BookValue, &h.MarketValue); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// PreviousSnapshotDate returns the latest snapshot date strictly before the given one
func (r *Repository) PreviousSnapshotDate(ctx context.Context, accountID string, before time.Time) (time.Time, bool, error) {
	var prev *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT MAX(snapshot_date) FROM holdings_snapshots WHERE account_id = $1 AND snapshot_date < $2`,
		accountID, before,
	).Scan(&prev)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query previous snapshot: %w", err)
	}
	if prev == nil {
		return time.Time{}, false, nil
	}
	return *prev, true, nil
}

// ReplaceDetected deletes prior detections for (account, to) and inserts txs in one transaction
func (r *Repository) ReplaceDetected(ctx context.Context, accountID string, toDate time.Time, txs []contracts.DetectedTransaction) error {
	insert := `
		INSERT INTO detected_transactions
			(account_id, transaction_type, ticker, quantity, price, amount,
			 transaction_date, from_snapshot_date, to_snapshot_date, description)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
	`

	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM detected_transactions WHERE account_id = $1 AND to_snapshot_date = $2`,
			accountID, toDate,
		); err != nil {
			return fmt.Errorf("delete detections: %w", err)
		}
		if len(txs) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, t := range txs {
			var from *time.Time
			if !t.FromDate.IsZero() {
				d := t.FromDate
				from = &d
			}
			batch.Queue(insert, t.AccountID, string(t.Type), t.Ticker, t.Quantity, t.Price, t.Amount,
				t.TransactionDate, from, t.ToDate, t.Description)
		}

		br := tx.SendBatch(ctx, batch)
		for range txs {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert detection: %w", err)
			}
		}
		return br.Close()
	})
}

// DetectedFor lists detections for (account, to)
func (r *Repository) DetectedFor(ctx context.Context, accountID string, toDate time.Time) ([]contracts.DetectedTransaction, error) {
	query := `
		SELECT id, account_id, transaction_type, COALESCE(ticker, ''), quantity, price, amount,
		       transaction_date, from_snapshot_date, to_snapshot_date, COALESCE(description, '')
		FROM detected_transactions
		WHERE account_id = $1 AND to_snapshot_date = $2
		ORDER BY ticker NULLS FIRST, transaction_type
	`

	rows, err := r.db.Query(ctx, query, accountID, toDate)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var out []contracts.DetectedTransaction
	for rows.Next() {
		var t contracts.DetectedTransaction
		var typ string
		var from *time.Time
		if err := rows.Scan(&t.ID, &t.AccountID, &typ, &t.Ticker, &t.Quantity, &t.Price, &t.Amount,
			&t.TransactionDate, &from, &t.ToDate, &t.Description); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		t.Type = contracts.TransactionType(typ)
		if from != nil {
			t.FromDate = *from
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RefreshAccountTotal recomputes the account total from its snapshot on date
func (r *Repository) RefreshAccountTotal(ctx context.Context, accountID string, date time.Time) error {
	query := `
		UPDATE accounts SET
			total_value = COALESCE((
				SELECT SUM(market_value) FROM holdings_snapshots
				WHERE account_id = $1 AND snapshot_date = $2
			), 0),
			cash_balance = COALESCE((
				SELECT SUM(market_value) FROM holdings_snapshots
				WHERE account_id = $1 AND snapshot_date = $2 AND ticker IS NULL
			), 0),
			updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, accountID, date); err != nil {
		return fmt.Errorf("refresh account total: %w", err)
	}
	return nil
}

// UpsertRiskSnapshot writes one row; re-running a day overwrites it
func (r *Repository) UpsertRiskSnapshot(ctx context.Context, s contracts.RiskSnapshot) error {
	query := `
		INSERT INTO risk_snapshots
			(portfolio_id, ticker, snapshot_date, snapshot_type, volatility, max_drawdown,
			 beta, sharpe, value_at_risk, var_95, var_99, es_95, es_99,
			 risk_score, risk_level, market_value, total_value)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (portfolio_id, ticker, snapshot_date, snapshot_type) DO UPDATE SET
			volatility = EXCLUDED.volatility,
			max_drawdown = EXCLUDED.max_drawdown,
			beta = EXCLUDED.beta,
			sharpe = EXCLUDED.sharpe,
			value_at_risk = EXCLUDED.value_at_risk,
			var_95 = EXCLUDED.var_95,
			var_99 = EXCLUDED.var_99,
			es_95 = EXCLUDED.es_95,
			es_99 = EXCLUDED.es_99,
			risk_score = EXCLUDED.risk_score,
			risk_level = EXCLUDED.risk_level,
			market_value = EXCLUDED.market_value,
			total_value = EXCLUDED.total_value
	`
	_, err := r.db.Exec(ctx, query,
		s.PortfolioID, s.Ticker, s.SnapshotDate, string(s.Type), s.Volatility, s.MaxDrawdown,
		s.Beta, s.Sharpe, s.VaR95, s.VaR99, s.ES95, s.ES99,
		s.RiskScore, string(s.Level), s.MarketValue, s.TotalValue,
	)
	if err != nil {
		return fmt.Errorf("upsert risk snapshot: %w", err)
	}
	return nil
}

// PortfolioHistory returns portfolio-level rows in [from, to], oldest first
func (r *Repository) PortfolioHistory(ctx context.Context, portfolioID string, from, to time.Time) ([]contracts.RiskSnapshot, error) {
	query := `
		SELECT id, portfolio_id, COALESCE(ticker, ''), snapshot_date, snapshot_type,
		       volatility, max_drawdown, beta, sharpe, var_95, var_99, es_95, es_99,
		       risk_score, risk_level, market_value, total_value
		FROM risk_snapshots
		WHERE portfolio_id = $1
		  AND snapshot_type = 'portfolio'
		  AND snapshot_date BETWEEN $2 AND $3
		ORDER BY snapshot_date ASC
	`
	return r.querySnapshots(ctx, query, portfolioID, from, to)
}

// PositionSnapshots returns the position rows of one day
func (r *Repository) PositionSnapshots(ctx context.Context, portfolioID string, date time.Time) ([]contracts.RiskSnapshot, error) {
	query := `
		SELECT id, portfolio_id, COALESCE(ticker, ''), snapshot_date, snapshot_type,
		       volatility, max_drawdown, beta, sharpe, var_95, var_99, es_95, es_99,
		       risk_score, risk_level, market_value, total_value
		FROM risk_snapshots
		WHERE portfolio_id = $1
		  AND snapshot_type = 'position'
		  AND snapshot_date = $2
		ORDER BY ticker
	`
	return r.querySnapshots(ctx, query, portfolioID, date)
}

// LatestPortfolioSnapshot returns the newest portfolio-level row
func (r *Repository) LatestPortfolioSnapshot(ctx context.Context, portfolioID string) (contracts.RiskSnapshot, bool, error) {
	query := `
		SELECT id, portfolio_id, COALESCE(ticker, ''), snapshot_date, snapshot_type,
		       volatility, max_drawdown, beta, sharpe, var_95, var_99, es_95, es_99,
		       risk_score, risk_level, market_value, total_value
		FROM risk_snapshots
		WHERE portfolio_id = $1 AND snapshot_type = 'portfolio'
		ORDER BY snapshot_date DESC
		LIMIT 1
	`
	out, err := r.querySnapshots(ctx, query, portfolioID)
	if err != nil || len(out) == 0 {
		return contracts.RiskSnapshot{}, false, err
	}
	return out[0], true, nil
}

// ArchiveBefore deletes risk snapshots dated before cutoff
func (r *Repository) ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM risk_snapshots WHERE snapshot_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive risk snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) querySnapshots(ctx context.Context, query string, args ...any) ([]contracts.RiskSnapshot, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query risk snapshots: %w", err)
	}
	defer rows.Close()

	var out []contracts.RiskSnapshot
	for rows.Next() {
		var s contracts.RiskSnapshot
		var typ, level string
		if err := rows.Scan(&s.ID, &s.PortfolioID, &s.Ticker, &s.SnapshotDate, &typ,
			&s.Volatility, &s.MaxDrawdown, &s.Beta, &s.Sharpe, &s.VaR95, &s.VaR99, &s.ES95, &s.ES99,
			&s.RiskScore, &level, &s.MarketValue, &s.TotalValue); err != nil {
			return nil, fmt.Errorf("scan risk snapshot: %w", err)
		}
		s.Type = contracts.SnapshotType(typ)
		s.Level = contracts.RiskLevel(level)
		out = append(out, s)
	}
	return out, rows.Err()
}
