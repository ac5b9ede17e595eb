package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/storeit/dashboard/internal/config"
	"github.com/storeit/dashboard/internal/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db.internal",
		Port:     "5433",
		Name:     "storeit",
		User:     "svc",
		Password: "p@ss/word",
	})

	assert.True(t, strings.HasPrefix(dsn, "postgres://svc:"))
	assert.Contains(t, dsn, "@db.internal:5433/storeit")
	assert.Contains(t, dsn, "sslmode=disable")
	assert.NotContains(t, dsn, "p@ss/word", "password must be escaped")
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", migrateURL("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)

	var up, down int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			down++
		}
	}
	assert.Positive(t, up)
	assert.Equal(t, up, down, "every migration needs a down script")
}

func TestOpen_InvalidDSN(t *testing.T) {
	_, err := Open(context.Background(), "not a dsn ::", 1, 2)
	assert.Error(t, err)
}

func TestOpenAndMigrate(t *testing.T) {
	dsn := dbtest.StartPostgres(t)
	ctx := context.Background()

	require.NoError(t, RunMigrations(dsn))
	// A second run is a no-op.
	require.NoError(t, RunMigrations(dsn))

	db, err := Open(ctx, dsn, 1, 4)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(ctx))

	stats := db.Stats()
	assert.Equal(t, int32(4), stats.Max)
	assert.GreaterOrEqual(t, stats.Total, stats.Idle)

	var tables int
	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name IN ('hosts', 'customers')`,
	).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 2, tables)

	require.NoError(t, RollbackMigrations(dsn))
	require.NoError(t, RunMigrations(dsn))
}

func TestPing_AfterClose(t *testing.T) {
	dsn := dbtest.StartPostgres(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := Open(ctx, dsn, 1, 2)
	require.NoError(t, err)

	db.Close()
	db.Close()

	assert.Error(t, db.Ping(ctx), "ping should fail after the pool is closed")
}
