package auth_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
)

// TestBootstrapCreatesAdmin verifies the first administrator can log in and
// holds the admin permissions.
func TestBootstrapCreatesAdmin(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	admin := bootstrapService(t, client)

	info, err := admin.GetUserInfo(t.Context())
	require.NoError(t, err)
	require.Equal(t, adminEmail, info.Email)
	require.True(t, info.IsStaff)
	require.Contains(t, info.Permissions, "users:write")
	require.Contains(t, info.Permissions, "keys:manage")
}

// TestBootstrapOnlyOnce verifies a second bootstrap is rejected.
func TestBootstrapOnlyOnce(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	bootstrapService(t, client)

	_, err := client.Bootstrap(t.Context(), bootstrapToken, authsdk.BootstrapRequest{
		Email:    "second@example.com",
		Password: adminPassword,
	})
	requireAPIError(t, err, http.StatusConflict, authsdk.ErrorCodeAlreadyBootstrapped)
}

// TestBootstrapRequiresToken verifies the bootstrap token is checked.
func TestBootstrapRequiresToken(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	req := authsdk.BootstrapRequest{Email: adminEmail, Password: adminPassword}

	_, err := client.Bootstrap(t.Context(), "wrong-token", req)
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeUnauthorized)

	_, err = client.Bootstrap(t.Context(), "", req)
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeUnauthorized)
}

// TestBootstrapDisabled verifies the endpoint is hidden without a token.
func TestBootstrapDisabled(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t, map[string]string{"AUTH_BOOTSTRAP_TOKEN": ""})
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	_, err := client.Bootstrap(t.Context(), bootstrapToken, authsdk.BootstrapRequest{
		Email:    adminEmail,
		Password: adminPassword,
	})
	requireAPIError(t, err, http.StatusNotFound, authsdk.ErrorCodeNotFound)
}
