package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/database"
)

// Repository stores daily closes in price_points
// ⭐ SSOT: 가격 데이터 저장소는 여기서만
type Repository struct {
	db database.Pool
}

// NewRepository creates a price repository
func NewRepository(db database.Pool) *Repository {
	return &Repository{db: db}
}

// LatestDate returns the newest stored date for ticker
func (r *Repository) LatestDate(ctx context.Context, ticker string) (time.Time, bool, error) {
	var latest *time.Time
	err := r.db.QueryRow(ctx, `SELECT MAX(date) FROM price_points WHERE ticker = $1`, ticker).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query latest date: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return *latest, true, nil
}

// UpsertBatch writes all points in one transaction; either every row lands or none
func (r *Repository) UpsertBatch(ctx context.Context, points []contracts.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	query := `
		INSERT INTO price_points (ticker, date, close_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (ticker, date) DO UPDATE SET
			close_price = EXCLUDED.close_price
	`

	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range points {
			batch.Queue(query, p.Ticker, p.Date, p.Close)
		}

		br := tx.SendBatch(ctx, batch)
		for range points {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("upsert price point: %w", err)
			}
		}
		return br.Close()
	})
}

// GetHistory returns the whole stored series, oldest first
func (r *Repository) GetHistory(ctx context.Context, ticker string) ([]contracts.PricePoint, error) {
	return r.query(ctx, `
		SELECT ticker, date, close_price
		FROM price_points
		WHERE ticker = $1
		ORDER BY date ASC
	`, ticker)
}

// GetRange returns points in [from, to], oldest first
func (r *Repository) GetRange(ctx context.Context, ticker string, from, to time.Time) ([]contracts.PricePoint, error) {
	return r.query(ctx, `
		SELECT ticker, date, close_price
		FROM price_points
		WHERE ticker = $1 AND date BETWEEN $2 AND $3
		ORDER BY date ASC
	`, ticker, from, to)
}

// GetRecent returns the last n points, oldest first
func (r *Repository) GetRecent(ctx context.Context, ticker string, n int) ([]contracts.PricePoint, error) {
	return r.query(ctx, `
		SELECT ticker, date, close_price FROM (
			SELECT ticker, date, close_price
			FROM price_points
			WHERE ticker = $1
			ORDER BY date DESC
			LIMIT $2
		) recent
		ORDER BY date ASC
	`, ticker, n)
}

// LatestClose returns the newest close for ticker
func (r *Repository) LatestClose(ctx context.Context, ticker string) (contracts.PricePoint, error) {
	var p contracts.PricePoint
	err := r.db.QueryRow(ctx, `
		SELECT ticker, date, close_price
		FROM price_points
		WHERE ticker = $1
		ORDER BY date DESC
		LIMIT 1
	`, ticker).Scan(&p.Ticker, &p.Date, &p.Close)
	if err != nil {
		return p, fmt.Errorf("latest close %s: %w", ticker, err)
	}
	return p, nil
}

// DistinctHeldTickers lists tickers with a positive quantity in any position
func (r *Repository) DistinctHeldTickers(ctx context.Context) ([]string, error) {
	return r.tickers(ctx, `
		SELECT DISTINCT ticker
		FROM positions
		WHERE quantity > 0 AND ticker <> ''
		ORDER BY ticker
	`)
}

// DistinctWatchlistTickers lists every watched ticker
func (r *Repository) DistinctWatchlistTickers(ctx context.Context) ([]string, error) {
	return r.tickers(ctx, `
		SELECT DISTINCT ticker
		FROM watchlist_items
		ORDER BY ticker
	`)
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]contracts.PricePoint, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query price points: %w", err)
	}
	defer rows.Close()

	var points []contracts.PricePoint
	for rows.Next() {
		var p contracts.PricePoint
		if err := rows.Scan(&p.Ticker, &p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *Repository) tickers(ctx context.Context, sql string) ([]string, error) {
	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query tickers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
