package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/cremich/promptz-sub001/pkg/promptz/store/postgres"
	"github.com/cremich/promptz-sub001/pkg/promptz/store/storetest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// newTestPool connects to TEST_DATABASE_URL or skips the test.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, pool.Ping(ctx), "Failed to ping test database")
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresStore(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	kinds := promptz.DefaultRegistry().Kinds()

	store := postgres.NewWithPool(pool, postgres.WithSchema("promptz_test"))
	require.NoError(t, store.Migrate(ctx, kinds...))
	// migrate is idempotent
	require.NoError(t, store.Migrate(ctx, kinds...))

	storetest.Run(t, func(t *testing.T) promptz.Store {
		for _, k := range kinds {
			_, err := pool.Exec(ctx, "TRUNCATE promptz_test."+k.Plural)
			require.NoError(t, err)
		}
		return store
	})
}
