/*
Package authsdk is a Go client for the gatekeeper authentication service.

SDKClient covers the public endpoints. Session wraps a token pair and
refreshes the access token before it expires.

	client := authsdk.NewSDKClient("https://auth.example.com")

	session, err := client.AuthenticateWithPassword(ctx, email, password)
	var tfa *authsdk.TwoFactorRequiredError
	if errors.As(err, &tfa) {
		tokens, err := client.VerifyTwoFactor(ctx, tfa.PendingToken, "totp", code)
		if err != nil {
			return err
		}
		session = client.NewSession(*tokens)
	}

	info, err := session.GetUserInfo(ctx)

Under a mandatory MFA policy a login may require enrollment first. Wrap the
pending token with PendingSession, call GenerateTwoFactor and then
ConfirmTwoFactor; the confirmation returns the login's tokens.

Errors from the service are *APIError values. ErrorCode extracts the kind:

	if authsdk.ErrorCode(err) == authsdk.ErrorCodeTooManyAttempts { ... }

The request and response types in this package are also the server's wire
types.
*/
package authsdk
