//go:build integration

package containers

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"lms/internal/platform/config"
	"lms/internal/platform/postgres"
)

type Postgres struct {
	DSN string
	DB  *sql.DB
}

// NewPostgresContainer starts postgres:16-alpine with an lms database.
func NewPostgresContainer(t *testing.T) *Postgres {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("lms"),
		tcpostgres.WithUsername("lms"),
		tcpostgres.WithPassword("lms"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "start postgres")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "postgres connection string")

	db, err := postgres.Open(ctx, config.PostgresConfig{
		URL:             dsn,
		MaxOpenConns:    16,
		MaxIdleConns:    4,
		ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err, "connect postgres")
	t.Cleanup(func() { _ = db.Close() })

	return &Postgres{DSN: dsn, DB: db}
}

func (p *Postgres) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+strings.Join(tables, ", "))
	return err
}
