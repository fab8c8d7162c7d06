package jwtx

import (
	"errors"
	"slices"
	"sync"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeySet holds public verification keys by kid. Safe for concurrent use.
type KeySet struct {
	mu   sync.RWMutex
	jwks []JWK
	pub  map[string]any
}

func NewKeySet() *KeySet {
	return &KeySet{pub: make(map[string]any)}
}

func (k *KeySet) AddSigner(s Signer) error {
	return k.AddJWK(s.PublicJWK())
}

// AddJWK adds or replaces the key with j.Kid.
func (k *KeySet) AddJWK(j JWK) error {
	key, err := j.PublicKey()
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.pub[j.Kid]; exists {
		k.jwks = slices.DeleteFunc(k.jwks, func(x JWK) bool { return x.Kid == j.Kid })
	}
	k.pub[j.Kid] = key
	k.jwks = append(k.jwks, j)
	return nil
}

// Remove drops kid so tokens signed by it no longer verify.
func (k *KeySet) Remove(kid string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.pub, kid)
	k.jwks = slices.DeleteFunc(k.jwks, func(x JWK) bool { return x.Kid == kid })
}

func (k *KeySet) Get(kid string) (any, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// PublicJWKS returns a copy for serving on the JWKS endpoint.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return JWKS{Keys: append([]JWK{}, k.jwks...)}
}

func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub) > 0
}
