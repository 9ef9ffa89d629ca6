package cachestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/folio/backend/pkg/database"
)

// Repository is the Postgres backend; each kind has its own table with a
// unique constraint over its key columns.
type Repository struct {
	db database.Querier
}

// NewRepository creates the Postgres cache backend
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// where builds "col1 = $1 AND col2 = $2 ..." for a kind's key columns
func where(spec kindSpec) string {
	parts := make([]string, len(spec.columns))
	for i, c := range spec.columns {
		parts[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	return strings.Join(parts, " AND ")
}

func params(key Key) []any {
	out := make([]any, len(key.Params))
	for i, p := range key.Params {
		out[i] = p
	}
	return out
}

// Get returns the stored row regardless of expiry; the Store decides liveness
func (r *Repository) Get(ctx context.Context, key Key) (Entry, bool, error) {
	spec, err := key.validate()
	if err != nil {
		return Entry{}, false, err
	}

	query := fmt.Sprintf(`SELECT payload, calculated_at, expires_at FROM %s WHERE %s`, spec.table, where(spec))

	e := Entry{Key: key}
	var payload []byte
	err = r.db.QueryRow(ctx, query, params(key)...).Scan(&payload, &e.CalculatedAt, &e.ExpiresAt)
	if database.IsNoRows(err) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	e.Payload = payload
	return e, true, nil
}

// Put upserts on the kind's key columns, replacing payload and timestamps
func (r *Repository) Put(ctx context.Context, e Entry) error {
	spec, err := e.Key.validate()
	if err != nil {
		return err
	}

	n := len(spec.columns)
	placeholders := make([]string, n)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, payload, calculated_at, expires_at)
		VALUES (%s, $%d, $%d, $%d)
		ON CONFLICT (%s) DO UPDATE SET
			payload = EXCLUDED.payload,
			calculated_at = EXCLUDED.calculated_at,
			expires_at = EXCLUDED.expires_at`,
		spec.table, strings.Join(spec.columns, ", "),
		strings.Join(placeholders, ", "), n+1, n+2, n+3,
		strings.Join(spec.columns, ", "),
	)

	args := append(params(e.Key), []byte(e.Payload), e.CalculatedAt, e.ExpiresAt)
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

// Delete removes one row
func (r *Repository) Delete(ctx context.Context, key Key) error {
	spec, err := key.validate()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, spec.table, where(spec)), params(key)...)
	return err
}

// DeleteKind empties a kind's table
func (r *Repository) DeleteKind(ctx context.Context, kind Kind) (int64, error) {
	spec, ok := kinds[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, spec.table))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes rows whose expires_at <= now
func (r *Repository) DeleteExpired(ctx context.Context, kind Kind, now time.Time) (int64, error) {
	spec, ok := kinds[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= $1`, spec.table), now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
