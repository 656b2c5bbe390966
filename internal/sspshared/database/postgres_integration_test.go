package database_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	googleUuid "github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgresModule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"sspbackend/internal/sspshared/database"
)

// startPostgresContainer spins up a disposable postgres instance for
// schema-level migration tests, falling back to skipping the test when
// Docker is unavailable rather than failing the suite.
func startPostgresContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	dbName := fmt.Sprintf("testdb_%s", googleUuid.New())
	userName := fmt.Sprintf("user_%s", googleUuid.New())

	container, err := postgresModule.Run(ctx,
		"postgres:18-alpine",
		postgresModule.WithDatabase(dbName),
		postgresModule.WithUsername(userName),
		postgresModule.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres testcontainer unavailable, skipping: %v", err)
	}

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return connStr
}

func TestInitPostgreSQL_AppliesMigrations(t *testing.T) {
	t.Parallel()

	connStr := startPostgresContainer(t)

	db, err := database.InitPostgreSQL(context.Background(), connStr, database.MigrationsFS)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
}

func TestInitPostgreSQL_SecondRunIsNoop(t *testing.T) {
	t.Parallel()

	connStr := startPostgresContainer(t)

	_, err := database.InitPostgreSQL(context.Background(), connStr, database.MigrationsFS)
	require.NoError(t, err)

	_, err = database.InitPostgreSQL(context.Background(), connStr, database.MigrationsFS)
	require.NoError(t, err)
}
