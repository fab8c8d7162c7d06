package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")

	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// VerifyOptions captures the expectations a verifier enforces.
type VerifyOptions struct {
	// Issuer the token must carry. Empty disables the check.
	Issuer string

	// Audience values of which at least one must be present. Empty disables
	// the check.
	Audience []string

	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// KeySetVerifier verifies EdDSA and ES256 tokens against the public keys in
// a KeySet, selecting the key by the kid header.
type KeySetVerifier struct {
	keys *KeySet
	opts VerifyOptions
}

func NewVerifier(keys *KeySet, opts VerifyOptions) *KeySetVerifier {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &KeySetVerifier{keys: keys, opts: opts}
}

// Verify checks signature, expiry, issuer, audience and token type. Errors
// wrap one of the package sentinels so callers can classify them with
// errors.Is.
func (v *KeySetVerifier) Verify(raw string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{AlgorithmEdDSA, AlgorithmES256}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.opts.Leeway),
		jwt.WithTimeFunc(v.opts.Now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(raw, &claims, v.keyFunc)
	if err != nil {
		return Claims{}, classify(err)
	}

	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(v.opts.Audience); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateTokenType(); err != nil {
		return Claims{}, err
	}
	if claims.Subject == "" || claims.ID == "" {
		return Claims{}, ErrInvalidClaim
	}
	return claims, nil
}

func (v *KeySetVerifier) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, ErrUnknownKID
	}
	pub, err := v.keys.Get(kid)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
	}
	return pub, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %w", ErrNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	case errors.Is(err, ErrUnknownKID):
		return err
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrInvalidSig, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidClaim, err)
	}
}
