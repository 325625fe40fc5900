//go:build integration

// Package pgtest starts a disposable Postgres container migrated with the
// embedded goose migrations. Tests using it carry the integration build tag
// and need a reachable Docker daemon.
package pgtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/migrate"
)

const image = "postgres:16-alpine"

// Open starts Postgres, applies migrations and returns a client whose pool is
// large enough for concurrency tests.
func Open(t testing.TB) *db.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "marketcore",
				"POSTGRES_PASSWORD": "marketcore",
				"POSTGRES_DB":       "marketcore",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	client, err := db.New(ctx, config.DBConfig{
		DSN:           fmt.Sprintf("postgres://marketcore:marketcore@%s:%s/marketcore?sslmode=disable", host, port.Port()),
		MaxOpenConns:  32,
		MaxIdleConns:  8,
		TxMaxAttempts: 5,
	}, nil)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.DB().DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	if err := migrate.UpEmbedded(ctx, sqlDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}
