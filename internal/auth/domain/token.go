package domain

import "time"

// TokenPair is what a successful authentication returns.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"` // always "Bearer"
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

// RefreshToken is the stored revocation record of an opaque refresh token.
// Only the fingerprint of the token is kept.
type RefreshToken struct {
	ID        string
	UserID    string
	FamilyID  string // shared by every token produced through rotation
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
