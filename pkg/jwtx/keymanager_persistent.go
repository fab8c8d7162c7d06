package jwtx

import (
	"context"
	"fmt"
	"time"
)

// SigningKeyRecord is a stored signing key. Kept free of the domain
// package so jwtx has no upward dependencies.
type SigningKeyRecord struct {
	ID                  string
	Kid                 string
	Algorithm           string
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	RetiredAt           *time.Time
	ExpiresAt           time.Time
}

// KeyStore is the persistence needed by NewPersistentKeyManager.
type KeyStore interface {
	// ListVerifiableSigningKeys returns every key not yet past expires_at.
	ListVerifiableSigningKeys(ctx context.Context, now time.Time) ([]SigningKeyRecord, error)
	CreateSigningKey(ctx context.Context, key SigningKeyRecord) error
}

// KeySealer encrypts private key PEM at rest.
type KeySealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

type PersistentKeyManagerOptions struct {
	KeyManagerOptions

	Store  KeyStore
	Sealer KeySealer

	// NewID mints record IDs for generated keys.
	NewID func() string

	// Lifetime is how long a new key stays verifiable if never retired
	// explicitly. Defaults to 90 days.
	Lifetime time.Duration
}

// NewPersistentKeyManager loads signing keys from the store, generating and
// persisting new ones until NumKeys active keys exist.
func NewPersistentKeyManager(ctx context.Context, opts PersistentKeyManagerOptions) (*KeyManager, error) {
	if opts.Store == nil || opts.Sealer == nil {
		return nil, fmt.Errorf("jwtx: Store and Sealer are required for persistent key manager")
	}
	if opts.NewID == nil {
		return nil, fmt.Errorf("jwtx: NewID is required for persistent key manager")
	}
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = 90 * 24 * time.Hour
	}

	now := time.Now()
	records, err := opts.Store.ListVerifiableSigningKeys(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("jwtx: failed to load keys from database: %w", err)
	}

	keyset := NewKeySet()
	active := make([]Signer, 0, opts.NumKeys)
	for _, rec := range records {
		pemData, err := opts.Sealer.Open(rec.PrivateKeyEncrypted)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to decrypt key %s: %w", rec.Kid, err)
		}
		signer, err := NewSigner(rec.Algorithm, rec.Kid, pemData)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to create signer for key %s: %w", rec.Kid, err)
		}
		if err := keyset.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: failed to add key %s to keyset: %w", rec.Kid, err)
		}
		if rec.RetiredAt == nil {
			active = append(active, signer)
		}
	}

	for len(active) < opts.NumKeys {
		rec, signer, err := GeneratePersistentKey(opts.Algorithm, opts.Sealer, opts.NewID(), now, opts.Lifetime)
		if err != nil {
			return nil, err
		}
		if err := opts.Store.CreateSigningKey(ctx, rec); err != nil {
			return nil, fmt.Errorf("jwtx: failed to store new key: %w", err)
		}
		if err := keyset.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: failed to add new key to keyset: %w", err)
		}
		active = append(active, signer)
	}

	km := newKeyManager(opts.KeyManagerOptions, keyset, active)
	km.persistent = true
	return km, nil
}

// GeneratePersistentKey creates a key pair and the sealed record to store.
func GeneratePersistentKey(
	algorithm string,
	sealer KeySealer,
	id string,
	now time.Time,
	lifetime time.Duration,
) (SigningKeyRecord, Signer, error) {
	kid, err := NewKeyID()
	if err != nil {
		return SigningKeyRecord{}, nil, err
	}
	pemData, signer, err := GenerateSigner(algorithm, kid)
	if err != nil {
		return SigningKeyRecord{}, nil, fmt.Errorf("jwtx: failed to generate new key: %w", err)
	}
	sealed, err := sealer.Seal(pemData)
	if err != nil {
		return SigningKeyRecord{}, nil, fmt.Errorf("jwtx: failed to encrypt new key: %w", err)
	}
	return SigningKeyRecord{
		ID:                  id,
		Kid:                 kid,
		Algorithm:           algorithm,
		PrivateKeyEncrypted: sealed,
		CreatedAt:           now,
		ExpiresAt:           now.Add(lifetime),
	}, signer, nil
}
