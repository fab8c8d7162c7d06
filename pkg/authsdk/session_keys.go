package authsdk

import (
	"context"
	"net/http"
)

// RotateKeys requires keys:manage.
func (s *Session) RotateKeys(ctx context.Context, retireExisting bool) (*RotateKeyResponse, error) {
	resp, err := s.do(ctx, http.MethodPost, "/v1/admin/keys/rotate", RotateKeyRequest{RetireExisting: retireExisting})
	if err != nil {
		return nil, err
	}
	var out RotateKeyResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListKeys requires keys:manage.
func (s *Session) ListKeys(ctx context.Context) (*ListKeysResponse, error) {
	resp, err := s.do(ctx, http.MethodGet, "/v1/admin/keys", nil)
	if err != nil {
		return nil, err
	}
	var out ListKeysResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetireKey requires keys:manage. The last active key cannot be retired.
func (s *Session) RetireKey(ctx context.Context, kid string) error {
	resp, err := s.do(ctx, http.MethodPost, "/v1/admin/keys/"+kid+"/retire", nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}
