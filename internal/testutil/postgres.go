// Package testutil provides test helpers for running repositories against a
// disposable PostgreSQL container.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/charstats/internal/config"
	"github.com/cory-johannsen/charstats/internal/storage/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	Config    config.DatabaseConfig
}

var (
	sharedOnce sync.Once
	shared     *PostgresContainer
	sharedErr  error
)

// NewPool returns a connection pool to a migrated test database and truncates
// every table so each test starts empty. One container is shared by all tests
// in the package binary.
//
// Postcondition: Returns a connected pool, or skips the test when -short is set
// or Docker is unavailable.
func NewPool(t *testing.T) *postgres.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in -short mode")
	}

	sharedOnce.Do(func() {
		shared, sharedErr = startPostgres(context.Background())
	})
	if sharedErr != nil {
		t.Skipf("postgres container unavailable: %v", sharedErr)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, shared.Config, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("connecting to test postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.DB().Exec(ctx, `TRUNCATE characters CASCADE`); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
	return pool
}

// Container returns the shared container, starting it if necessary.
//
// Postcondition: Returns the container, or skips the test as NewPool does.
func Container(t *testing.T) *PostgresContainer {
	t.Helper()
	NewPool(t)
	return shared
}

func startPostgres(ctx context.Context) (pc *PostgresContainer, err error) {
	defer func() {
		// testcontainers panics when no Docker provider can be found.
		if r := recover(); r != nil {
			err = fmt.Errorf("starting container: %v", r)
		}
	}()
	start := time.Now()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w [%s]", err, time.Since(start))
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting container host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("getting mapped port: %w", err)
	}

	pc = &PostgresContainer{
		container: container,
		Config: config.DatabaseConfig{
			Enabled:         true,
			Host:            host,
			Port:            mappedPort.Int(),
			User:            "test",
			Password:        "test",
			Name:            "test",
			SSLMode:         "disable",
			MaxConns:        5,
			MinConns:        1,
			MaxConnLifetime: 5 * time.Minute,
		},
	}

	if _, err := postgres.Migrate(pc.DSN(), "up", 0); err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	return pc, nil
}

// DSN returns the connection string for the test database.
func (pc *PostgresContainer) DSN() string {
	return pc.Config.DSN()
}
