package domain

import "time"

// SigningKey is a JWT signing key persisted in persistent key mode.
type SigningKey struct {
	ID                  string
	Kid                 string
	Algorithm           string // EdDSA or ES256
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	RetiredAt           *time.Time // nil while the key signs
	ExpiresAt           time.Time  // no longer verifiable after this
}

func (k SigningKey) IsActive(now time.Time) bool {
	return k.RetiredAt == nil && now.Before(k.ExpiresAt)
}
