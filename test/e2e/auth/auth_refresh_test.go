package auth_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
)

// TestRefreshRotation verifies refresh tokens rotate and that replaying a
// rotated token revokes the whole family.
func TestRefreshRotation(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()

	_, session := registerUser(t, client, "refresh@example.com")
	first := session.RefreshToken()

	second, err := client.Refresh(ctx, first)
	require.NoError(t, err)
	assertTokenResponse(t, second)
	require.NotEqual(t, first, second.RefreshToken)

	third, err := client.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)

	// Replay of the first token is reuse
	_, err = client.Refresh(ctx, first)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeTokenRevoked)

	_, err = client.Refresh(ctx, third.RefreshToken)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeTokenRevoked)
}

// TestRefreshWithoutRotation verifies the same refresh token keeps working
// when rotation is disabled.
func TestRefreshWithoutRotation(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t, map[string]string{"AUTH_REFRESH_ROTATION": "false"})
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	_, session := registerUser(t, client, "static@example.com")

	for range 3 {
		resp, err := client.Refresh(t.Context(), session.RefreshToken())
		require.NoError(t, err)
		require.Equal(t, session.RefreshToken(), resp.RefreshToken)
	}
}

// TestRevoke verifies logout is idempotent and kills the refresh token.
func TestRevoke(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()

	_, session := registerUser(t, client, "revoke@example.com")
	rt := session.RefreshToken()

	require.NoError(t, session.Revoke(ctx))
	require.NoError(t, client.Revoke(ctx, rt))
	require.NoError(t, client.Revoke(ctx, "never-issued"))

	_, err := client.Refresh(ctx, rt)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeTokenRevoked)
}
