package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a throwaway postgres container. Needs docker.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres driver tests need docker")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "gatekeeper",
				"POSTGRES_PASSWORD": "gatekeeper",
				"POSTGRES_DB":       "gatekeeper",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://gatekeeper:gatekeeper@%s:%s/gatekeeper?sslmode=disable", host, port.Port())
}

func TestPostgresStore(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	s, err := postgres.NewStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.ApplyMigrations())

	now := time.Now().UTC().Truncate(time.Second)
	u := domain.User{
		ID: idx.New().String(), Email: "pg@example.com", PasswordHash: "h",
		IsActive: true, Roles: []domain.Role{domain.RoleAdmin}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.Users().CreateUser(ctx, u))
	require.ErrorIs(t, s.Users().CreateUser(ctx, u), store.ErrAlreadyExists)

	got, err := s.Users().GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.Equal(t, []domain.Role{domain.RoleAdmin}, got.Roles)

	d := domain.TOTPDevice{ID: idx.New().String(), UserID: u.ID, SecretSealed: []byte("s"), CreatedAt: now}
	require.NoError(t, s.TOTPDevices().CreateDevice(ctx, d))
	require.NoError(t, s.TOTPDevices().ConfirmDevice(ctx, d.ID, 10, now))

	ok, err := s.TOTPDevices().AdvanceLastUsedStep(ctx, d.ID, 10)
	require.NoError(t, err)
	require.False(t, ok)

	ch := domain.MFAChallenge{JTI: "j", UserID: u.ID, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, s.MFAChallenges().EnsureChallenge(ctx, ch))
	n, err := s.MFAChallenges().IncrementAttempts(ctx, "j", 5)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		return tx.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
			ID: idx.New().String(), UserID: u.ID, FamilyID: "f", TokenHash: "t",
			ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
		})
	})
	require.NoError(t, err)
	require.NoError(t, s.RefreshTokens().RevokeAllForUser(ctx, u.ID, now))

	rt, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, "t")
	require.NoError(t, err)
	require.True(t, rt.Revoked)

	// Concurrent revokes of one token: the row lock lets exactly one win.
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID: idx.New().String(), UserID: u.ID, FamilyID: "race", TokenHash: "race",
		ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
	}))
	const workers = 8
	var wg sync.WaitGroup
	type result struct {
		ok  bool
		err error
	}
	results := make(chan result, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var ok bool
			err := s.WithTx(ctx, func(tx store.Tx) error {
				var err error
				ok, err = tx.RefreshTokens().RevokeRefreshToken(ctx, "race", now)
				return err
			})
			results <- result{ok, err}
		}()
	}
	wg.Wait()
	close(results)
	winners := 0
	for r := range results {
		require.NoError(t, r.err)
		if r.ok {
			winners++
		}
	}
	require.Equal(t, 1, winners)
}
