package cryptox_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealer_RoundTrip(t *testing.T) {
	s, err := cryptox.NewSealer([]byte("test-master-key-for-encryption-12345"))
	require.NoError(t, err)

	secret := []byte("JBSWY3DPEHPK3PXP-totp-seed")

	a, err := s.Seal(secret)
	require.NoError(t, err)
	b, err := s.Seal(secret)
	require.NoError(t, err)
	require.NotEqual(t, a, b, "nonce must differ per seal")

	for _, sealed := range [][]byte{a, b} {
		out, err := s.Open(sealed)
		require.NoError(t, err)
		require.Equal(t, secret, out)
	}
}

func TestSealer_WrongKey(t *testing.T) {
	s1, err := cryptox.NewSealer([]byte("key-one"))
	require.NoError(t, err)
	s2, err := cryptox.NewSealer([]byte("key-two"))
	require.NoError(t, err)

	sealed, err := s1.Seal([]byte("data"))
	require.NoError(t, err)

	_, err = s2.Open(sealed)
	require.Error(t, err)
}

func TestSealer_Tampered(t *testing.T) {
	s, err := cryptox.NewSealer([]byte("key"))
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("data"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = s.Open(sealed)
	require.Error(t, err)

	_, err = s.Open([]byte{1, 2, 3})
	require.ErrorIs(t, err, cryptox.ErrCiphertextTooShort)
}

func TestNewSealer_Empty(t *testing.T) {
	_, err := cryptox.NewSealer(nil)
	require.Error(t, err)
}

func TestLoadSealer(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "master.key")
		require.NoError(t, os.WriteFile(path, []byte("file-key"), 0o600))

		s, ephemeral, err := cryptox.LoadSealer(path)
		require.NoError(t, err)
		require.False(t, ephemeral)

		fromBytes, err := cryptox.NewSealer([]byte("file-key"))
		require.NoError(t, err)
		sealed, err := s.Seal([]byte("x"))
		require.NoError(t, err)
		out, err := fromBytes.Open(sealed)
		require.NoError(t, err)
		require.Equal(t, []byte("x"), out)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := cryptox.LoadSealer(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
	})

	t.Run("from env", func(t *testing.T) {
		t.Setenv("AUTH_MASTER_KEY", "env-key")
		_, ephemeral, err := cryptox.LoadSealer("")
		require.NoError(t, err)
		require.False(t, ephemeral)
	})

	t.Run("ephemeral", func(t *testing.T) {
		t.Setenv("AUTH_MASTER_KEY", "")
		s, ephemeral, err := cryptox.LoadSealer("")
		require.NoError(t, err)
		require.True(t, ephemeral)
		require.NotNil(t, s)
	})
}
