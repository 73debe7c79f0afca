//go:build integration

package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/calendar-bridge/internal/domain"
	"github.com/smallbiznis/calendar-bridge/internal/repository"
	"github.com/smallbiznis/calendar-bridge/internal/repository/migrations"
)

func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatal("DATABASE_URL must be set for integration tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	require.NoError(t, migrations.Run(ctx, pool))
	return pool
}

func TestPostgresTokenRepoLifecycle(t *testing.T) {
	pool := setupDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.NewPostgresTokenRepo(pool, node)
	ctx := context.Background()
	identity := "integration-" + node.Generate().String() + "@example.com"

	_, err = repo.FindByIdentity(ctx, identity)
	require.True(t, errors.Is(err, pgx.ErrNoRows))

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	first, err := repo.Upsert(ctx, domain.TokenRecord{
		Identity:     identity,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    expiry,
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := repo.Upsert(ctx, domain.TokenRecord{
		Identity:    identity,
		AccessToken: "access-2",
		ExpiresAt:   expiry.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	found, err := repo.FindByIdentity(ctx, identity)
	require.NoError(t, err)
	require.Equal(t, "access-2", found.AccessToken)
	require.Empty(t, found.RefreshToken)
	require.True(t, found.ExpiresAt.Equal(expiry.Add(time.Hour)))

	removed, err := repo.Delete(ctx, identity)
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = repo.Delete(ctx, identity)
	require.NoError(t, err)
	require.False(t, removed)

	_, err = repo.FindByIdentity(ctx, identity)
	require.True(t, errors.Is(err, pgx.ErrNoRows))
}
