package cryptox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	SetPepper("unit-test-pepper")
	os.Exit(m.Run())
}

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "password123"},
		{"complex password", "P@ssw0rd!#$%^&*()"},
		{"long password", strings.Repeat("a", 100)},
		{"unicode password", "senha-çãé-🔒"},
		{"whitespace password", "   spaces   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))
			require.Len(t, strings.Split(hash, "$"), 6)

			require.NoError(t, VerifyPassword(tt.password, hash))
			require.ErrorIs(t, VerifyPassword(tt.password+"x", hash), ErrPasswordMismatch)
			require.False(t, NeedsRehash(hash))
		})
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	a, err := HashPassword("samepassword")
	require.NoError(t, err)
	b, err := HashPassword("samepassword")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerifyPassword_PepperMatters(t *testing.T) {
	hash, err := HashPassword("pw123456")
	require.NoError(t, err)

	SetPepper("another-pepper")
	t.Cleanup(func() { SetPepper("unit-test-pepper") })

	require.ErrorIs(t, VerifyPassword("pw123456", hash), ErrPasswordMismatch)
}

func TestVerifyPassword_Bcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	require.NoError(t, VerifyPassword("legacy-pass", string(legacy)))
	require.ErrorIs(t, VerifyPassword("wrong", string(legacy)), ErrPasswordMismatch)
	require.True(t, NeedsRehash(string(legacy)))
}

func TestVerifyPassword_Malformed(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"plaintext", "hunter2"},
		{"too few parts", "$argon2id$v=19$m=1,t=1,p=1$abc"},
		{"wrong version", "$argon2id$v=18$m=1,t=1,p=1$c2FsdA$aGFzaA"},
		{"bad params", "$argon2id$v=19$garbage$c2FsdA$aGFzaA"},
		{"bad salt", "$argon2id$v=19$m=1,t=1,p=1$!!!$aGFzaA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, VerifyPassword("x", tt.hash))
		})
	}
}

func TestLoadPepper(t *testing.T) {
	t.Cleanup(func() { SetPepper("unit-test-pepper") })
	path := filepath.Join(t.TempDir(), "secrets", "pepper")

	require.NoError(t, LoadPepper(path))
	first := currentPepper()
	require.NotEmpty(t, first)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, first, string(data))

	// Second load must reuse the persisted value
	SetPepper("")
	require.NoError(t, LoadPepper(path))
	require.Equal(t, first, currentPepper())
}
