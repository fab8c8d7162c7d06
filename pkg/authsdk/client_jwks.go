package authsdk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

// GetJWKS retrieves the key set used to verify issued tokens, retired keys
// in their grace period included.
func (c *SDKClient) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/jwks.json", nil, "", nil)
	if err != nil {
		return nil, err
	}

	var jwks JWKSResponse
	if err := decodeJSON(resp, &jwks, http.StatusOK); err != nil {
		return nil, err
	}
	return &jwks, nil
}

// NewVerifier fetches the JWKS once and returns a verifier that checks
// access tokens locally. Callers refetch after a key rotation.
func (c *SDKClient) NewVerifier(ctx context.Context, opts jwtx.VerifyOptions) (*jwtx.KeySetVerifier, error) {
	jwks, err := c.GetJWKS(ctx)
	if err != nil {
		return nil, err
	}

	keys := jwtx.NewKeySet()
	for _, k := range jwks.Keys {
		if err := keys.AddJWK(k); err != nil {
			return nil, fmt.Errorf("load key %s: %w", k.Kid, err)
		}
	}
	return jwtx.NewVerifier(keys, opts), nil
}
