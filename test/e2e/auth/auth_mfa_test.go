package auth_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
)

// TestMFAEnrollmentAndAuthentication covers enrollment, a TOTP login, a
// recovery code login and removal of the device.
func TestMFAEnrollmentAndAuthentication(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()

	_, session := registerUser(t, client, "mfa@example.com")
	secret, recovery := enrollTOTP(t, session)
	require.Len(t, recovery, 10)

	info, err := session.GetUserInfo(ctx)
	require.NoError(t, err)
	require.True(t, info.Has2FA)

	// Password alone is no longer enough
	_, err = client.AuthenticateWithPassword(ctx, "mfa@example.com", userPassword)
	var tfa *authsdk.TwoFactorRequiredError
	require.True(t, errors.As(err, &tfa), "expected a second factor challenge, got %v", err)
	require.False(t, tfa.RequiresEnrollment)

	// The code spent on enrollment is refused, the next step works
	code := nextStepCode(t, secret)
	tokens, err := client.VerifyTwoFactor(ctx, tfa.PendingToken, "", code)
	require.NoError(t, err)
	assertTokenResponse(t, tokens)

	_, err = client.VerifyTwoFactor(ctx, tfa.PendingToken, "", code)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	// Recovery codes work once
	login, err := client.Login(ctx, "mfa@example.com", userPassword)
	require.NoError(t, err)
	_, err = client.VerifyTwoFactor(ctx, login.PendingToken, "recovery_code", recovery[0])
	require.NoError(t, err)

	login, err = client.Login(ctx, "mfa@example.com", userPassword)
	require.NoError(t, err)
	_, err = client.VerifyTwoFactor(ctx, login.PendingToken, "recovery_code", recovery[0])
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCode)

	// Removing the device restores password-only login
	mfaSession := client.NewSession(*tokens)
	requireAPIError(t, mfaSession.DisableTwoFactor(ctx, "wrong-password"),
		http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	require.NoError(t, mfaSession.DisableTwoFactor(ctx, userPassword))

	_, err = client.AuthenticateWithPassword(ctx, "mfa@example.com", userPassword)
	require.NoError(t, err)
}

// TestMFAAttemptLimit verifies a pending token is burnt after five wrong codes.
func TestMFAAttemptLimit(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()

	_, session := registerUser(t, client, "limit@example.com")
	secret, _ := enrollTOTP(t, session)

	login, err := client.Login(ctx, "limit@example.com", userPassword)
	require.NoError(t, err)
	require.True(t, login.Requires2FA)

	for range 5 {
		_, err = client.VerifyTwoFactor(ctx, login.PendingToken, "", "abcdef")
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCode)
	}

	_, err = client.VerifyTwoFactor(ctx, login.PendingToken, "", nextStepCode(t, secret))
	requireAPIError(t, err, http.StatusTooManyRequests, authsdk.ErrorCodeTooManyAttempts)
}

// TestMandatoryEnrollment verifies users without a device enroll with their
// pending token and receive a session on confirm.
func TestMandatoryEnrollment(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t, map[string]string{"AUTH_MFA_POLICY": "mandatory"})
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()

	resp, err := client.Register(ctx, authsdk.RegisterRequest{
		Email:           "new@example.com",
		Password:        userPassword,
		PasswordConfirm: userPassword,
	})
	require.NoError(t, err)
	require.True(t, resp.Requires2FA)
	require.True(t, resp.RequiresEnrollment)
	require.Empty(t, resp.AccessToken)

	pending := client.PendingSession(resp.PendingToken)

	_, err = pending.GetUserInfo(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	gen, err := pending.GenerateTwoFactor(ctx)
	require.NoError(t, err)

	confirm, err := pending.ConfirmTwoFactor(ctx, totpCode(t, gen.Secret, time.Now()))
	require.NoError(t, err)
	require.NotNil(t, confirm.Tokens)
	assertTokenResponse(t, confirm.Tokens)

	// ConfirmTwoFactor switched the session to the issued tokens
	info, err := pending.GetUserInfo(ctx)
	require.NoError(t, err)
	require.True(t, info.Has2FA)
}
