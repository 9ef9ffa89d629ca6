package failcache

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/folio/backend/internal/contracts"
	"github.com/wonny/folio/backend/pkg/database"
)

// Repository mirrors the cache into ticker_fetch_failures
type Repository struct {
	db database.Querier
}

// NewRepository creates a failure mirror backed by Postgres
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// SaveFailure upserts the row and bumps consecutive_failures
func (r *Repository) SaveFailure(ctx context.Context, rec contracts.FailureRecord) error {
	query := `
		INSERT INTO ticker_fetch_failures (
			ticker, last_attempt_at, failure_type, retry_after, consecutive_failures, error_message
		) VALUES ($1, $2, $3, $4, 1, NULLIF($5, ''))
		ON CONFLICT (ticker) DO UPDATE SET
			last_attempt_at = EXCLUDED.last_attempt_at,
			failure_type = EXCLUDED.failure_type,
			retry_after = EXCLUDED.retry_after,
			consecutive_failures = ticker_fetch_failures.consecutive_failures + 1,
			error_message = EXCLUDED.error_message
	`

	_, err := r.db.Exec(ctx, query, rec.Ticker, rec.FailedAt, string(rec.Kind), rec.ExpiresAt(), rec.Message)
	if err != nil {
		return fmt.Errorf("save fetch failure %s: %w", rec.Ticker, err)
	}
	return nil
}

// DeleteFailure removes the row after a successful fetch
func (r *Repository) DeleteFailure(ctx context.Context, ticker string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM ticker_fetch_failures WHERE ticker = $1`, ticker); err != nil {
		return fmt.Errorf("delete fetch failure %s: %w", ticker, err)
	}
	return nil
}

// DeleteExpired drops rows whose retry_after has passed
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM ticker_fetch_failures WHERE retry_after <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired fetch failures: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LoadLive returns rows still suppressing fetches, used to rehydrate the cache at startup
func (r *Repository) LoadLive(ctx context.Context, now time.Time) ([]contracts.FailureRecord, error) {
	query := `
		SELECT ticker, last_attempt_at, failure_type, retry_after, COALESCE(error_message, '')
		FROM ticker_fetch_failures
		WHERE retry_after > $1
	`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("query fetch failures: %w", err)
	}
	defer rows.Close()

	var records []contracts.FailureRecord
	for rows.Next() {
		var (
			rec        contracts.FailureRecord
			kind       string
			retryAfter time.Time
		)
		if err := rows.Scan(&rec.Ticker, &rec.FailedAt, &kind, &retryAfter, &rec.Message); err != nil {
			return nil, fmt.Errorf("scan fetch failure: %w", err)
		}
		rec.Kind = contracts.FailureKind(kind)
		rec.TTL = retryAfter.Sub(rec.FailedAt)
		records = append(records, rec)
	}

	return records, rows.Err()
}
