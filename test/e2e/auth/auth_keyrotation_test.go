package auth_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
)

// TestKeyRotation verifies a rotated key set keeps old tokens valid while new
// tokens are signed with the new key.
func TestKeyRotation(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()

	admin := bootstrapService(t, client)
	_, student := registerUser(t, client, "rotation@example.com")
	oldKid := tokenKid(t, student.AccessToken())

	keys, err := admin.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys.Keys, 1)
	require.Equal(t, oldKid, keys.Keys[0].Kid)

	rotated, err := admin.RotateKeys(ctx, true)
	require.NoError(t, err)
	require.NotEqual(t, oldKid, rotated.NewKey.Kid)
	require.Equal(t, 1, rotated.ActiveKeys)
	require.Len(t, rotated.RetiredKeys, 1)
	require.Equal(t, oldKid, rotated.RetiredKeys[0].Kid)

	// Retired keys stay published for the grace period
	jwks, err := client.GetJWKS(ctx)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 2)

	info, err := student.GetUserInfo(ctx)
	require.NoError(t, err, "token signed by the retired key should still verify")
	require.Equal(t, "rotation@example.com", info.Email)

	fresh, err := client.AuthenticateWithPassword(ctx, "rotation@example.com", userPassword)
	require.NoError(t, err)
	require.Equal(t, rotated.NewKey.Kid, tokenKid(t, fresh.AccessToken()))

	t.Logf("Rotated %s -> %s", oldKid, rotated.NewKey.Kid)
}

// TestKeyRotationAddsActiveKey verifies rotation without retirement leaves
// several keys in the signing set.
func TestKeyRotationAddsActiveKey(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()
	admin := bootstrapService(t, client)

	rotated, err := admin.RotateKeys(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 2, rotated.ActiveKeys)
	require.Empty(t, rotated.RetiredKeys)

	keys, err := admin.ListKeys(ctx)
	require.NoError(t, err)
	active := 0
	for _, k := range keys.Keys {
		if k.Active {
			active++
		}
	}
	require.Equal(t, 2, active)
}

// TestRetireKey verifies single retirement and that the last active key is
// protected.
func TestRetireKey(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()
	admin := bootstrapService(t, client)

	keys, err := admin.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys.Keys, 1)
	original := keys.Keys[0].Kid

	err = admin.RetireKey(ctx, original)
	requireAPIError(t, err, http.StatusConflict, authsdk.ErrorCodeLastActiveKey)

	_, err = admin.RotateKeys(ctx, false)
	require.NoError(t, err)

	require.NoError(t, admin.RetireKey(ctx, original))

	err = admin.RetireKey(ctx, "does-not-exist")
	requireAPIError(t, err, http.StatusNotFound, authsdk.ErrorCodeKeyNotFound)
}

// TestKeyRotationRequiresPermission verifies students cannot manage keys.
func TestKeyRotationRequiresPermission(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	bootstrapService(t, client)
	_, student := registerUser(t, client, "nokeys@example.com")

	_, err := student.RotateKeys(t.Context(), false)
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeUnauthorized)

	_, err = student.ListKeys(t.Context())
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeUnauthorized)
}
