package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

func login(t *testing.T, h *harness, email string) domain.TokenPair {
	t.Helper()
	res, err := h.auth.Login(context.Background(), email, testPassword)
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
	return *res.Tokens
}

func TestRefreshRotation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.register(t, "ana@example.com")
	first := login(t, h, "ana@example.com")

	second, err := h.auth.RefreshSession(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	c := h.claims(t, second.AccessToken)
	require.Equal(t, u.ID, c.Subject)
	require.True(t, c.IsAuthenticated())
	require.Empty(t, c.AMR)

	// Presenting the rotated token again revokes the whole family.
	_, err = h.auth.RefreshSession(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	_, err = h.auth.RefreshSession(ctx, second.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRefreshReuseLeavesOtherFamilies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "ana@example.com")
	laptop := login(t, h, "ana@example.com")
	phone := login(t, h, "ana@example.com")

	_, err := h.auth.RefreshSession(ctx, laptop.RefreshToken)
	require.NoError(t, err)
	_, err = h.auth.RefreshSession(ctx, laptop.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	_, err = h.auth.RefreshSession(ctx, phone.RefreshToken)
	require.NoError(t, err)
}

// staleReadStore hands out refresh records as if they had not been revoked
// yet, which is what a second transaction sees when it reads the row before
// the first one commits.
type staleReadStore struct{ store.Store }

func (s staleReadStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error { return fn(staleReadTx{tx}) })
}

// innerTx gives the embedded field a name that does not shadow the Tx method.
type innerTx = store.Tx

type staleReadTx struct{ innerTx }

func (t staleReadTx) RefreshTokens() store.RefreshTokens {
	return staleRefreshTokens{t.innerTx.RefreshTokens()}
}

type staleRefreshTokens struct{ store.RefreshTokens }

func (r staleRefreshTokens) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	rec, err := r.RefreshTokens.GetRefreshTokenByHash(ctx, hash)
	rec.Revoked = false
	return rec, err
}

func TestRefreshLosingRotationRaceRevokesFamily(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "ana@example.com")
	first := login(t, h, "ana@example.com")

	winner, err := h.auth.RefreshSession(ctx, first.RefreshToken)
	require.NoError(t, err)

	loser := *h.tokens
	loser.Store = staleReadStore{h.store}
	_, err = loser.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// The winner's successor belongs to the same family and dies with it.
	_, err = h.auth.RefreshSession(ctx, winner.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestConcurrentRefreshMintsOneSuccessor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "ana@example.com")
	pair := login(t, h, "ana@example.com")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.auth.RefreshSession(ctx, pair.RefreshToken)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		require.ErrorIs(t, err, ErrTokenRevoked)
	}
	require.Equal(t, 1, successes)
}

func TestRefreshWithoutRotation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.tokens.RotateRefresh = false
	h.register(t, "ana@example.com")
	pair := login(t, h, "ana@example.com")

	for range 3 {
		next, err := h.auth.RefreshSession(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.Equal(t, pair.RefreshToken, next.RefreshToken)
	}
}

func TestRefreshCarriesCurrentRoles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.register(t, "ana@example.com")
	pair := login(t, h, "ana@example.com")

	_, err := h.creds.SetRoles(ctx, u.ID, []string{"staff", "estudante"})
	require.NoError(t, err)

	next, err := h.auth.RefreshSession(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"staff", "student"}, h.claims(t, next.AccessToken).Roles)
}

func TestRefreshFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.register(t, "ana@example.com")

	t.Run("unknown token", func(t *testing.T) {
		_, err := h.auth.RefreshSession(ctx, "not-a-token")
		require.ErrorIs(t, err, ErrTokenInvalid)
		_, err = h.auth.RefreshSession(ctx, "")
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		h.tokens.RefreshTTL = -time.Hour
		defer func() { h.tokens.RefreshTTL = 0 }()
		pair := login(t, h, "ana@example.com")
		_, err := h.auth.RefreshSession(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("inactive user", func(t *testing.T) {
		pair := login(t, h, "ana@example.com")
		require.NoError(t, h.store.Users().SetActive(ctx, u.ID, false, time.Now()))
		defer func() { require.NoError(t, h.store.Users().SetActive(ctx, u.ID, true, time.Now())) }()
		_, err := h.auth.RefreshSession(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrTokenRevoked)
	})
}

func TestRevokeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "ana@example.com")
	pair := login(t, h, "ana@example.com")

	require.NoError(t, h.auth.Logout(ctx, pair.RefreshToken))
	require.NoError(t, h.auth.Logout(ctx, pair.RefreshToken))
	require.NoError(t, h.auth.Logout(ctx, "never-issued"))
	require.NoError(t, h.auth.Logout(ctx, ""))

	_, err := h.auth.RefreshSession(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestVerifyAccessTokenErrors(t *testing.T) {
	h := newHarness(t)
	u := h.register(t, "ana@example.com")

	_, err := h.tokens.VerifyAccessToken("garbage")
	require.ErrorIs(t, err, ErrTokenMalformed)

	h.tokens.AccessTTL = -10 * time.Minute
	pair, err := h.tokens.IssueFullTokenPair(context.Background(), u, []string{jwtx.AMRPassword})
	require.NoError(t, err)
	_, err = h.tokens.VerifyAccessToken(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)

	other, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmEdDSA, Issuer: testIssuer})
	require.NoError(t, err)
	foreign, err := other.Sign(jwtx.NewClaims(jwtx.ClaimsParams{
		Subject:   u.ID,
		TokenType: jwtx.TokenTypeAuthenticated,
		Issuer:    testIssuer,
		TTL:       time.Minute,
		Now:       time.Now(),
	}))
	require.NoError(t, err)
	_, err = h.tokens.VerifyAccessToken(foreign)
	require.ErrorIs(t, err, ErrTokenInvalid)
}
