//go:build integration

// Package dbtest starts a throwaway PostgreSQL for integration tests.
package dbtest

import (
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-course/internal/platform/database"
)

// New starts a postgres container, applies the schema and returns a
// connected DB. The container is removed when the test ends.
func New(t *testing.T) *database.DB {
	t.Helper()
	ctx := t.Context()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("course"),
		postgres.WithUsername("course"),
		postgres.WithPassword("course"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	db, err := database.New(ctx, url, 5, 1)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
