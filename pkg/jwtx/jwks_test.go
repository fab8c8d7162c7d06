package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJWK_Ed25519RoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	j := NewEd25519JWK("kid-1", AlgorithmEdDSA, pub)
	require.Equal(t, "OKP", j.Kty)
	require.Equal(t, "sig", j.Use)

	key, err := j.PublicKey()
	require.NoError(t, err)
	require.Equal(t, pub, key)
}

func TestJWK_ES256RoundTrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	j := NewES256JWK("kid-2", AlgorithmES256, &priv.PublicKey)
	require.Equal(t, "P-256", j.Crv)
	require.Len(t, j.X, 43)
	require.Len(t, j.Y, 43)

	key, err := j.PublicKey()
	require.NoError(t, err)
	got, ok := key.(*ecdsa.PublicKey)
	require.True(t, ok)
	require.True(t, priv.PublicKey.Equal(got))
}

func TestJWK_Unsupported(t *testing.T) {
	for _, j := range []JWK{
		{Kty: "RSA"},
		{Kty: "OKP", Crv: "X25519"},
		{Kty: "EC", Crv: "P-384"},
		{Kty: "OKP", Crv: "Ed25519", X: "c2hvcnQ"},
	} {
		_, err := j.PublicKey()
		require.Error(t, err, "jwk %+v", j)
	}
}

func TestKeySet_JWKS(t *testing.T) {
	ks := NewKeySet()
	require.False(t, ks.IsReady())

	out, err := json.Marshal(ks.PublicJWKS())
	require.NoError(t, err)
	require.JSONEq(t, `{"keys":[]}`, string(out))

	_, s1, err := GenerateSigner(AlgorithmEdDSA, "a")
	require.NoError(t, err)
	_, s2, err := GenerateSigner(AlgorithmES256, "b")
	require.NoError(t, err)
	require.NoError(t, ks.AddSigner(s1))
	require.NoError(t, ks.AddSigner(s2))
	require.NoError(t, ks.AddSigner(s1), "re-adding replaces")

	require.Len(t, ks.PublicJWKS().Keys, 2)

	ks.Remove("a")
	_, err = ks.Get("a")
	require.ErrorIs(t, err, ErrNoKey)
	require.Len(t, ks.PublicJWKS().Keys, 1)
}
