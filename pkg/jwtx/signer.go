package jwtx

import (
	"fmt"

	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
)

// Supported signing algorithms.
const (
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

// Signer signs claims with a private key identified by KID.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	PublicJWK() JWK
}

// NewSigner loads a PKCS8 PEM private key for the given algorithm.
func NewSigner(algorithm, kid string, pemKey []byte) (Signer, error) {
	switch algorithm {
	case AlgorithmEdDSA:
		return newEdDSASigner(kid, pemKey)
	case AlgorithmES256:
		return newES256Signer(kid, pemKey)
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: ES256, EdDSA)", algorithm)
	}
}

// GenerateSigner creates a fresh key pair and returns it as PEM together with
// a signer over it.
func GenerateSigner(algorithm, kid string) ([]byte, Signer, error) {
	var (
		pemData []byte
		err     error
	)
	switch algorithm {
	case AlgorithmEdDSA:
		pemData, err = cryptox.GenerateEd25519Key()
	case AlgorithmES256:
		pemData, err = cryptox.GenerateES256Key()
	default:
		return nil, nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: ES256, EdDSA)", algorithm)
	}
	if err != nil {
		return nil, nil, err
	}

	signer, err := NewSigner(algorithm, kid, pemData)
	if err != nil {
		return nil, nil, err
	}
	return pemData, signer, nil
}

// NewKeyID returns a random kid.
func NewKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("failed to generate random key ID: %w", err)
	}
	return "gk-" + token, nil
}
