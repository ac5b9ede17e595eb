// Package dbtest starts disposable PostgreSQL instances for integration tests.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// StartPostgres returns a DSN for a fresh Postgres 16 database. TEST_PG_DSN reuses an existing
// database instead. Tests are skipped in -short mode.
func StartPostgres(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if dsn := os.Getenv("TEST_PG_DSN"); dsn != "" {
		return dsn
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase("storeit"),
		postgres.WithUsername("storeit"),
		postgres.WithPassword("storeit"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	return dsn
}
