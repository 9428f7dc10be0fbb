// Package infra starts throwaway infrastructure for stress and
// integration tests.
package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Database is a running Postgres with migrations applied.
type Database struct {
	Pool      *pgxpool.Pool
	URL       string
	container *tcpostgres.PostgresContainer
}

// StartPostgres launches a Postgres container and applies the schema.
func StartPostgres(ctx context.Context) (*Database, error) {
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("escrowflow"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("infra: start postgres: %w", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("infra: connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("infra: connect: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &Database{Pool: pool, URL: url, container: container}, nil
}

// Close tears the database down.
func (d *Database) Close(ctx context.Context) {
	d.Pool.Close()
	if d.container != nil {
		_ = d.container.Terminate(ctx)
	}
}
