// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

//go:build integration

package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coursevoice/coursevoice/internal/auth"
	"github.com/coursevoice/coursevoice/internal/auth/postgres"
	"github.com/coursevoice/coursevoice/internal/store"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("coursevoice"),
		tcpostgres.WithUsername("coursevoice"),
		tcpostgres.WithPassword("coursevoice"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		panic(err)
	}
	defer func() { _ = container.Terminate(ctx) }()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		panic(err)
	}
	if err := migrator.Up(); err != nil {
		panic(err)
	}
	_ = migrator.Close()

	testPool, err = store.Connect(ctx, store.ConnectConfig{URL: connStr},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		panic(err)
	}
	defer testPool.Close()

	return m.Run()
}

func createUser(t *testing.T, email string, role auth.Role) *auth.User {
	t.Helper()
	user, err := auth.NewUser(email, "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$a2V5", role, "Test User")
	require.NoError(t, err)
	require.NoError(t, postgres.NewUserRepository(testPool).Create(context.Background(), user))
	return user
}

func TestUserRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	user := createUser(t, "ada@uni.example", auth.RoleStudent)
	assert.Positive(t, user.ID)

	byEmail, err := repo.FindByEmail(ctx, "ada@uni.example")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, auth.RoleStudent, byEmail.Role)

	dup, err := auth.NewUser("ada@uni.example", "$argon2id$x", auth.RoleStudent, "Again")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, dup), auth.ErrEmailTaken)

	require.NoError(t, repo.UpdatePassword(ctx, user.ID, "$argon2id$new"))
	byID, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "$argon2id$new", byID.PasswordHash)

	_, err = repo.FindByID(ctx, user.ID+1000)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestPasswordResetRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewPasswordResetRepository(testPool)
	user := createUser(t, "lin@uni.example", auth.RoleLecturer)
	now := time.Now().UTC().Truncate(time.Microsecond)

	live := &auth.PasswordResetToken{
		ID: ulid.Make(), UserID: user.ID, TokenHash: strings.Repeat("a1", 32),
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}
	stale := &auth.PasswordResetToken{
		ID: ulid.Make(), UserID: user.ID, TokenHash: strings.Repeat("b2", 32),
		ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, live))
	require.NoError(t, repo.Create(ctx, stale))

	got, err := repo.GetByTokenHash(ctx, live.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)
	assert.True(t, live.ExpiresAt.Equal(got.ExpiresAt))

	purged, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = repo.GetByTokenHash(ctx, stale.TokenHash)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	require.NoError(t, repo.DeleteByUser(ctx, user.ID))
	_, err = repo.GetByTokenHash(ctx, live.TokenHash)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}
