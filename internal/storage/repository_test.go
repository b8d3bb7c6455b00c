package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postgresForTest needs PRICEWATCH_TEST_POSTGRES_DSN and a reachable server;
// the test is skipped otherwise. Each test gets its own schema.
func postgresForTest(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("PRICEWATCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PRICEWATCH_TEST_POSTGRES_DSN not set, skipping test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := fmt.Sprintf("pricewatch_test_%d", time.Now().UnixNano())
	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skip("postgres is not available, skipping test")
	}
	_, err = pool.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		pool.Close()
	})

	store := NewPostgresStore(pool, zerolog.Nop())
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store := postgresForTest(t)
	ctx := context.Background()

	items, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	// The second sample has no last_notified_price and must come back as NULL.
	require.NoError(t, store.Save(ctx, sampleItems()))
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assertSameItems(t, sampleItems(), loaded)
	assert.False(t, loaded[1].LastNotifiedPrice.Valid)

	// save(load()) leaves the collection unchanged.
	require.NoError(t, store.Save(ctx, loaded))
	again, err := store.Load(ctx)
	require.NoError(t, err)
	assertSameItems(t, loaded, again)
	assert.Equal(t, "949.5", again[0].CurrentPrice.String())

	require.NoError(t, store.Save(ctx, sampleItems()[1:]))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assertSameItems(t, sampleItems()[1:], loaded)

	require.NoError(t, store.Save(ctx, nil))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestPostgresStoreAdvisoryLock(t *testing.T) {
	store := postgresForTest(t)
	ctx := context.Background()
	key := time.Now().UnixNano()

	unlock, ok, err := store.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = store.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	unlock()
	unlock2, ok, err := store.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	unlock2()
}

func TestPostgresStoreNotConfigured(t *testing.T) {
	var store *PostgresStore
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, store.Save(context.Background(), nil), ErrNotConfigured)
}
