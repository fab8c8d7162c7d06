package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type discriminators carried in the token_type claim.
const (
	// TokenTypePending marks a token minted after the password check while
	// the second factor is still outstanding.
	TokenTypePending = "pending_2fa"

	// TokenTypeAuthenticated marks a fully authenticated session.
	TokenTypeAuthenticated = "authenticated"
)

// Authentication method references for the amr claim.
const (
	AMRPassword = "pwd"
	AMROTP      = "otp"
	AMRRecovery = "rec"
	AMRMFA      = "mfa"
)

// Claims are the access token claims shared with downstream services.
type Claims struct {
	jwt.RegisteredClaims

	TokenType string   `json:"token_type"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	AMR       []string `json:"amr,omitempty"`
}

// ClaimsParams is the input to NewClaims.
type ClaimsParams struct {
	Subject   string
	TokenType string
	Email     string
	Roles     []string
	AMR       []string
	Issuer    string
	Audience  []string
	TTL       time.Duration
	Now       time.Time
}

// NewClaims builds claims with a fresh jti and iat/nbf/exp derived from p.Now.
func NewClaims(p ClaimsParams) Claims {
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings(p.Audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.TTL)),
			ID:        NewJTI(),
		},
		TokenType: p.TokenType,
		Email:     p.Email,
		Roles:     p.Roles,
		AMR:       p.AMR,
	}
}

// NewJTI returns a URL-safe random identifier for the jti claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

func (c *Claims) IsPending() bool       { return c.TokenType == TokenTypePending }
func (c *Claims) IsAuthenticated() bool { return c.TokenType == TokenTypeAuthenticated }

func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience passes when any expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateExpiry checks exp and nbf, tolerating leeway of clock skew.
func (c *Claims) ValidateExpiry(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}

// ValidateTokenType rejects unknown discriminators.
func (c *Claims) ValidateTokenType() error {
	switch c.TokenType {
	case TokenTypePending, TokenTypeAuthenticated:
		return nil
	default:
		return ErrInvalidClaim
	}
}
