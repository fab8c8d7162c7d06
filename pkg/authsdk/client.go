package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient calls the public endpoints and opens Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login submits credentials. When the response requires a second factor,
// finish with VerifyTwoFactor or, for enrollment, PendingSession.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/login", LoginRequest{Email: email, Password: password}, "", nil)
	if err != nil {
		return nil, err
	}
	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/register", req, "", nil)
	if err != nil {
		return nil, err
	}
	var out RegisterResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticateWithPassword logs in and returns a Session. It fails with a
// *TwoFactorRequiredError when the account needs a second factor.
func (c *SDKClient) AuthenticateWithPassword(ctx context.Context, email, password string) (*Session, error) {
	res, err := c.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if res.Requires2FA {
		return nil, &TwoFactorRequiredError{PendingToken: res.PendingToken, RequiresEnrollment: res.RequiresEnrollment}
	}
	return c.NewSession(res.Tokens()), nil
}

// VerifyTwoFactor redeems a pending token with a TOTP code, or with a
// recovery code when method is "recovery_code".
func (c *SDKClient) VerifyTwoFactor(ctx context.Context, pendingToken, method, code string) (*TokenResponse, error) {
	body := VerifyTwoFactorRequest{Code: code, Method: method}
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/2fa/verify", body, pendingToken, nil)
	if err != nil {
		return nil, err
	}
	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/token/refresh", RefreshRequest{RefreshToken: refreshToken}, "", nil)
	if err != nil {
		return nil, err
	}
	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SDKClient) Revoke(ctx context.Context, refreshToken string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/token/revoke", RevokeRequest{RefreshToken: refreshToken}, "", nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}

func (c *SDKClient) Bootstrap(ctx context.Context, token string, req BootstrapRequest) (*BootstrapResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/bootstrap", req, "", map[string]string{
		"X-Bootstrap-Token": token,
	})
	if err != nil {
		return nil, err
	}
	var out BootstrapResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// NewSession wraps an existing token pair.
func (c *SDKClient) NewSession(tokens TokenResponse) *Session {
	return newSession(c, tokens)
}

// PendingSession wraps a pending token so the enrollment endpoints can be
// called during a mandatory-enrollment login. It cannot refresh.
func (c *SDKClient) PendingSession(pendingToken string) *Session {
	return &Session{client: c, accessToken: pendingToken, expiresAt: time.Now().Add(time.Hour)}
}
