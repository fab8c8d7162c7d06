package jwtx

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// KeyManager owns the active signers and the verification KeySet.
// Signing picks one active signer at random; verification accepts any key
// still in the KeySet, including retired ones inside their grace period.
type KeyManager struct {
	Verifier Verifier
	KeySet   *KeySet

	algorithm  string
	persistent bool

	mu      sync.RWMutex
	signers []Signer
}

// KeyManagerOptions configures a KeyManager.
type KeyManagerOptions struct {
	// Algorithm is EdDSA or ES256.
	Algorithm string

	Issuer   string
	Audience []string
	Leeway   time.Duration

	// NumKeys is the number of active signing keys, between 1 and 10.
	// Defaults to 1.
	NumKeys int

	// Now overrides the verifier clock, for tests.
	Now func() time.Time
}

func (o *KeyManagerOptions) normalize() error {
	if o.Issuer == "" {
		return fmt.Errorf("jwtx: Issuer is required")
	}
	switch o.Algorithm {
	case AlgorithmEdDSA, AlgorithmES256:
	default:
		return fmt.Errorf("jwtx: unsupported algorithm %q (supported: ES256, EdDSA)", o.Algorithm)
	}
	o.NumKeys = min(max(o.NumKeys, 1), 10)
	return nil
}

func newKeyManager(opts KeyManagerOptions, keyset *KeySet, signers []Signer) *KeyManager {
	return &KeyManager{
		Verifier: NewVerifier(keyset, VerifyOptions{
			Issuer:   opts.Issuer,
			Audience: opts.Audience,
			Leeway:   opts.Leeway,
			Now:      opts.Now,
		}),
		KeySet:    keyset,
		algorithm: opts.Algorithm,
		signers:   signers,
	}
}

// NewEphemeralKeyManager generates keys in memory only. Every token becomes
// unverifiable when the process restarts.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	keyset := NewKeySet()
	signers := make([]Signer, 0, opts.NumKeys)
	for i := range opts.NumKeys {
		kid, err := NewKeyID()
		if err != nil {
			return nil, err
		}
		_, signer, err := GenerateSigner(opts.Algorithm, kid)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate signer %d: %w", i+1, err)
		}
		if err := keyset.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: failed to add signer %d to keyset: %w", i+1, err)
		}
		signers = append(signers, signer)
	}

	return newKeyManager(opts, keyset, signers), nil
}

func (km *KeyManager) Algorithm() string { return km.algorithm }

// Persistent reports whether the signers were loaded from a KeyStore. Only
// then do rotations need to be written back.
func (km *KeyManager) Persistent() bool { return km.persistent }

func (km *KeyManager) IsReady() bool {
	return km.KeySet.IsReady() && km.NumSigners() > 0
}

// Sign signs claims with a randomly chosen active key.
func (km *KeyManager) Sign(c Claims) (string, error) {
	s := km.GetSigner()
	if s == nil {
		return "", fmt.Errorf("jwtx: no active signing key")
	}
	return s.Sign(c)
}

func (km *KeyManager) GetSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	default:
		return km.signers[rand.IntN(len(km.signers))]
	}
}

func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// GetSigners returns a copy of the active signers.
func (km *KeyManager) GetSigners() []Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return append([]Signer(nil), km.signers...)
}

// AddSigner makes signer active and publishes its public key.
func (km *KeyManager) AddSigner(signer Signer) error {
	if signer == nil {
		return fmt.Errorf("signer cannot be nil")
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	if err := km.KeySet.AddSigner(signer); err != nil {
		return fmt.Errorf("failed to add signer to keyset: %w", err)
	}
	km.signers = append(km.signers, signer)
	return nil
}

// RetireSignerByKid stops signing with kid. The public key stays in the
// KeySet so outstanding tokens keep verifying.
func (km *KeyManager) RetireSignerByKid(kid string) error {
	km.mu.Lock()
	defer km.mu.Unlock()

	if len(km.signers) <= 1 {
		return fmt.Errorf("cannot retire the last signing key")
	}
	for i, s := range km.signers {
		if s.KID() == kid {
			km.signers = append(km.signers[:i:i], km.signers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("signer with kid %q not found", kid)
}
