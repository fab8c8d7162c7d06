package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

func TestRotateEphemeralKeys(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.register(t, "ana@example.com")
	before := login(t, h, "ana@example.com")
	oldKid := h.km.GetSigner().KID()

	svc := &KeyRotationService{KeyManager: h.km}

	require.ErrorIs(t, svc.RetireKey(ctx, oldKid), ErrLastActiveKey)
	require.ErrorIs(t, svc.RetireKey(ctx, "nope"), ErrKeyNotFound)

	resp, err := svc.RotateKey(ctx, RotateKeyRequest{RetireExisting: true})
	require.NoError(t, err)
	require.Equal(t, 1, resp.ActiveKeys)
	require.NotEqual(t, oldKid, resp.NewKey.Kid)
	require.Len(t, resp.RetiredKeys, 1)
	require.Equal(t, oldKid, resp.RetiredKeys[0].Kid)
	require.Equal(t, resp.NewKey.Kid, h.km.GetSigner().KID())

	// Tokens signed by the retired key still verify.
	_, err = h.tokens.VerifyAccessToken(before.AccessToken)
	require.NoError(t, err)

	after, err := h.tokens.IssueFullTokenPair(ctx, u, nil)
	require.NoError(t, err)
	require.Equal(t, resp.NewKey.Kid, kidOf(t, after.AccessToken))

	keys, err := svc.ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for _, k := range keys {
		require.Equal(t, k.Kid == resp.NewKey.Kid, k.Active, k.Kid)
		require.Equal(t, jwtx.AlgorithmEdDSA, k.Algorithm)
	}
}

func TestRotateWithoutRetiring(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := &KeyRotationService{KeyManager: h.km}
	oldKid := h.km.GetSigner().KID()

	resp, err := svc.RotateKey(ctx, RotateKeyRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, resp.ActiveKeys)
	require.Empty(t, resp.RetiredKeys)

	require.NoError(t, svc.RetireKey(ctx, oldKid))
	require.Equal(t, 1, h.km.NumSigners())
}

func TestRotatePersistentKeys(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	newManager := func() *jwtx.KeyManager {
		km, err := jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
			KeyManagerOptions: jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmES256, Issuer: testIssuer},
			Store:             store.NewKeyStoreAdapter(h.store),
			Sealer:            h.sealer,
			NewID:             func() string { return idx.New().String() },
		})
		require.NoError(t, err)
		return km
	}

	km := newManager()
	oldKid := km.GetSigner().KID()
	svc := &KeyRotationService{Store: h.store, Sealer: h.sealer, KeyManager: km, GracePeriod: time.Hour}

	resp, err := svc.RotateKey(ctx, RotateKeyRequest{RetireExisting: true})
	require.NoError(t, err)
	require.Len(t, resp.RetiredKeys, 1)
	require.NotNil(t, resp.RetiredKeys[0].RetiredAt)
	require.False(t, resp.RetiredKeys[0].Active)
	require.WithinDuration(t, time.Now().Add(time.Hour), resp.RetiredKeys[0].ExpiresAt, time.Minute)

	keys, err := svc.ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	active := map[string]bool{}
	for _, k := range keys {
		active[k.Kid] = k.Active
	}
	require.Equal(t, map[string]bool{resp.NewKey.Kid: true, oldKid: false}, active)

	// A restart picks the rotated key as the only signer and still
	// publishes the retired one.
	restarted := newManager()
	require.Equal(t, 1, restarted.NumSigners())
	require.Equal(t, resp.NewKey.Kid, restarted.GetSigner().KID())
	require.Len(t, restarted.KeySet.PublicJWKS().Keys, 2)
}

func TestKeyModeFollowsManager(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// An ephemeral manager lists its own key set even when a store is set.
	svc := &KeyRotationService{Store: h.store, Sealer: h.sealer, KeyManager: h.km}
	keys, err := svc.ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, h.km.GetSigner().KID(), keys[0].Kid)

	resp, err := svc.RotateKey(ctx, RotateKeyRequest{})
	require.NoError(t, err)
	stored, err := h.store.SigningKeys().ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Empty(t, stored, "ephemeral rotation must not persist %s", resp.NewKey.Kid)

	km, err := jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
		KeyManagerOptions: jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmEdDSA, Issuer: testIssuer},
		Store:             store.NewKeyStoreAdapter(h.store),
		Sealer:            h.sealer,
		NewID:             func() string { return idx.New().String() },
	})
	require.NoError(t, err)
	require.True(t, km.Persistent())

	_, err = (&KeyRotationService{KeyManager: km}).ListSigningKeys(ctx)
	require.Error(t, err)
}

func kidOf(t *testing.T, token string) string {
	t.Helper()
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &jwtx.Claims{})
	require.NoError(t, err)
	kid, _ := parsed.Header["kid"].(string)
	return kid
}
