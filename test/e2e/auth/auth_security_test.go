package auth_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
)

// TestInvalidCredentials verifies wrong passwords and unknown accounts get the
// same response.
func TestInvalidCredentials(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	bootstrapService(t, client)

	_, err := client.Login(t.Context(), adminEmail, "wrong-password")
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	wrongPassword := err.Error()

	_, err = client.Login(t.Context(), "nobody@example.com", adminPassword)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	require.Equal(t, wrongPassword, err.Error(), "unknown email must not be distinguishable")
}

// TestInvalidAccessToken verifies protected endpoints reject tokens that are
// malformed, pending, or lack permission.
func TestInvalidAccessToken(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()
	bootstrapService(t, client)

	invalid := client.NewSession(authsdk.TokenResponse{
		AccessToken: "invalid-token-12345",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
	})
	_, err := invalid.GetUserInfo(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeTokenMalformed)

	// A pending token only opens the second factor endpoints
	_, student := registerUser(t, client, "pending@example.com")
	enrollTOTP(t, student)
	login, err := client.Login(ctx, "pending@example.com", userPassword)
	require.NoError(t, err)
	require.True(t, login.Requires2FA)

	pending := client.PendingSession(login.PendingToken)
	_, err = pending.GetUserInfo(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	// Students hold no admin permissions
	other, plain := registerUser(t, client, "plain@example.com")
	err = plain.SetUserRoles(ctx, other.ID, []string{"admin"})
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeUnauthorized)
}

// TestDeactivatedUserCannotLogin verifies deactivation blocks login and
// refresh but activation restores access.
func TestDeactivatedUserCannotLogin(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()
	admin := bootstrapService(t, client)
	user, session := registerUser(t, client, "leaver@example.com")

	require.NoError(t, admin.DeactivateUser(ctx, user.ID))

	_, err := client.Login(ctx, "leaver@example.com", userPassword)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)

	_, err = client.Refresh(ctx, session.RefreshToken())
	require.Error(t, err, "refresh of a deactivated account should fail")

	require.NoError(t, admin.ActivateUser(ctx, user.ID))
	_, err = client.Login(ctx, "leaver@example.com", userPassword)
	require.NoError(t, err)
}
