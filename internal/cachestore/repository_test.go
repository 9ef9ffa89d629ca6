package cachestore

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/folio/backend/pkg/config"
	"github.com/wonny/folio/backend/pkg/database"
)

// openMigratedDB connects to TEST_DATABASE_URL and applies the core schema
func openMigratedDB(t *testing.T) *database.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if testing.Short() || url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	db, err := database.New(&config.Config{Database: config.DatabaseConfig{
		URL:             url,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	}})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	schema, err := os.ReadFile("../../migrations/001_core.sql")
	require.NoError(t, err)
	_, err = db.Pool.Exec(context.Background(), string(schema))
	require.NoError(t, err)
	return db
}

func TestRepositoryRoundTrip(t *testing.T) {
	db := openMigratedDB(t)
	repo := NewRepository(db.Pool)
	ctx := context.Background()

	key := DownsideRiskKey("it-portfolio", 252, "SPY")
	t.Cleanup(func() { _ = repo.Delete(context.Background(), key) })

	calculated := time.Now().UTC().Truncate(time.Second)
	entry := Entry{
		Key:          key,
		Payload:      json.RawMessage(`{"var_95":-2.1}`),
		CalculatedAt: calculated,
		ExpiresAt:    calculated.Add(6 * time.Hour),
	}
	require.NoError(t, repo.Put(ctx, entry))

	// 같은 키로 다시 쓰면 덮어씀
	entry.Payload = json.RawMessage(`{"var_95":-3.4}`)
	require.NoError(t, repo.Put(ctx, entry))

	got, ok, err := repo.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"var_95":-3.4}`, string(got.Payload))
	assert.True(t, got.ExpiresAt.Equal(entry.ExpiresAt))

	n, err := repo.DeleteExpired(ctx, KindDownsideRisk, calculated.Add(7*time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	_, ok, err = repo.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryRejectsUnknownKind(t *testing.T) {
	db := openMigratedDB(t)
	repo := NewRepository(db.Pool)

	_, err := repo.DeleteExpired(context.Background(), Kind("nope"), time.Now())
	assert.ErrorIs(t, err, ErrUnknownKind)
}
