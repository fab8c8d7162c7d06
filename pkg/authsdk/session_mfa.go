package authsdk

import (
	"context"
	"net/http"
)

// GenerateTwoFactor starts TOTP enrollment.
func (s *Session) GenerateTwoFactor(ctx context.Context) (*GenerateTwoFactorResponse, error) {
	resp, err := s.do(ctx, http.MethodPost, "/v1/2fa/generate", nil)
	if err != nil {
		return nil, err
	}
	var out GenerateTwoFactorResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmTwoFactor confirms enrollment with a code from the new device.
// On a pending session the response carries the login's tokens and the
// session switches to them.
func (s *Session) ConfirmTwoFactor(ctx context.Context, code string) (*ConfirmTwoFactorResponse, error) {
	resp, err := s.do(ctx, http.MethodPost, "/v1/2fa/confirm", ConfirmTwoFactorRequest{Code: code})
	if err != nil {
		return nil, err
	}
	var out ConfirmTwoFactorResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	if out.Tokens != nil {
		fresh := newSession(s.client, *out.Tokens)
		s.mu.Lock()
		s.accessToken, s.refreshToken, s.expiresAt = fresh.accessToken, fresh.refreshToken, fresh.expiresAt
		s.mu.Unlock()
	}
	return &out, nil
}

// DisableTwoFactor removes the device after re-checking the password.
func (s *Session) DisableTwoFactor(ctx context.Context, password string) error {
	resp, err := s.do(ctx, http.MethodPost, "/v1/2fa/disable", DisableTwoFactorRequest{Password: password})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
